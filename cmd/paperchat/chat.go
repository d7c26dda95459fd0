package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/rag"
	"github.com/matsen/paperchat/internal/tui"
)

var (
	chatFlags    turnFlags
	chatMessages []string
	chatExport   string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatFlags.register(chatCmd)
	chatCmd.Flags().StringArrayVarP(&chatMessages, "message", "m", nil, "Send a message without the interactive UI (repeatable, sent in order)")
	chatCmd.Flags().StringVar(&chatExport, "export", "", "With --message, write the conversation to this file afterwards")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat about the papers",
	Long: `Start an interactive chat. Follow-up questions such as "tell me more
about the second paper" are resolved against the previous answer, and a
follow-up that asks for the same thing reuses the papers already shown.

Inside the chat:
  /filter session=Poster Session 1|Poster Session 2 eventtype=Oral
  /filter clear
  /reset
  /export [path]
  /quit

With --message the chat runs without the interactive UI and prints each
answer, which is useful for scripting.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// ChatResponse is the JSON response for scripted chat.
type ChatResponse struct {
	Answers  []*rag.Answer `json:"answers"`
	Exported string        `json:"exported,omitempty"`
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env := mustChatEnv(ctx)
	defer env.Close()

	conv := rag.NewConversation()
	if filter := parseFilterFlags(chatFlags.sessions, chatFlags.topics, chatFlags.eventTypes); !filter.IsEmpty() {
		conv.SetFilter(filter)
	}

	if len(chatMessages) > 0 {
		return runScriptedChat(ctx, cmd, env, conv)
	}

	summary := fmt.Sprintf("%s %d | %s | %s", env.cfg.Conference, env.cfg.Year, env.provider.ModelName(), env.loop.ModelName())
	model := tui.New(env.loop, conv, config.ExportsPath(env.repoRoot), summary)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		exitWithError(ExitError, "running chat: %v", err)
	}
	return nil
}

func runScriptedChat(ctx context.Context, cmd *cobra.Command, env *chatEnv, conv *rag.Conversation) error {
	opts := chatFlags.options(cmd)
	var resp ChatResponse
	for i, msg := range chatMessages {
		answer, err := env.loop.Chat(ctx, conv, msg, opts...)
		if err != nil {
			exitWithError(exitCodeFor(err), "message %d: %v", i+1, err)
		}
		resp.Answers = append(resp.Answers, answer)
		if humanOutput {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("> %s\n\n", msg)
			printAnswerHuman(answer)
		}
	}

	if chatExport != "" {
		path := chatExport
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, rag.ExportFileName(time.Now()))
		}
		if _, err := env.loop.Export(conv, rag.FileSink{Path: path}); err != nil {
			exitWithError(ExitError, "%v", err)
		}
		resp.Exported = path
		if humanOutput {
			fmt.Fprintf(os.Stderr, "\nExported conversation to %s\n", path)
		}
	}

	if !humanOutput {
		outputJSON(resp)
	}
	return nil
}
