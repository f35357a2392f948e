package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neilberkman/studychat/internal/core/conversation"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/spf13/cobra"
)

var (
	askSession string
	askNew     bool
	askImage   string
	askGeneral bool
	askRAG     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the study assistant a question",
	Long: `Send one question and print the answer.

The question goes to the most recent session unless --session or --new is
given. The previous six messages of that session are sent as context.

Examples:
  studychat ask "What is the syllabus for Operating Systems?"
  studychat ask --general "Explain Big-O notation"
  studychat ask --image ./circuit.png
  studychat ask --session 2 "And the exam pattern?"`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "Session id, prefix or list position")
	askCmd.Flags().BoolVarP(&askNew, "new", "n", false, "Start a new session")
	askCmd.Flags().StringVarP(&askImage, "image", "i", "", "Attach an image")
	askCmd.Flags().BoolVarP(&askGeneral, "general", "g", false, "Answer from general knowledge only")
	askCmd.Flags().BoolVar(&askRAG, "rag", false, "Ground the answer in your documents")
	askCmd.MarkFlagsMutuallyExclusive("session", "new")
	askCmd.MarkFlagsMutuallyExclusive("general", "rag")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && askImage == "" {
		return errors.New("nothing to ask: give a question or --image")
	}

	ctx := logging.WithRequestID(context.Background(), uuid.NewString())
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	switch {
	case askNew:
		if _, err := a.controller.NewChat(ctx); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	case askSession != "":
		id, err := a.resolveSession(askSession)
		if err != nil {
			return err
		}
		a.store.LoadSession(id)
	}

	switch {
	case askGeneral:
		a.controller.SetMode(models.ModeGeneral)
	case askRAG:
		a.controller.SetMode(models.ModeRAG)
	}

	if askImage != "" {
		att, err := conversation.LoadAttachment(askImage)
		if err != nil {
			return err
		}
		a.controller.Attach(att)
	}
	a.controller.SetInput(question)

	spinner := NewSpinner(fmt.Sprintf("Asking (%s)...", a.controller.Mode().Label()))
	spinner.Start()
	reply, err := a.controller.Send(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}

	printMessage(reply, a.client)
	if reply.IsError {
		return errors.New("the question could not be answered")
	}
	return nil
}
