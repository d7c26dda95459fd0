package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/rag"
)

// turnFlags are the per-request overrides shared by ask and chat.
type turnFlags struct {
	nResults    int
	temperature float64
	maxTokens   int
	sessions    []string
	topics      []string
	eventTypes  []string
}

func (f *turnFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.nResults, "n-results", "n", 0, "Papers to retrieve (default from config)")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "Sampling temperature (default from config)")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Answer token limit (default from config)")
	addFilterFlags(cmd, &f.sessions, &f.topics, &f.eventTypes)
}

// options converts the flags that were set into query options.
func (f *turnFlags) options(cmd *cobra.Command) []rag.QueryOption {
	var opts []rag.QueryOption
	if cmd.Flags().Changed("n-results") {
		opts = append(opts, rag.WithNResults(f.nResults))
	}
	if cmd.Flags().Changed("temperature") {
		opts = append(opts, rag.WithTemperature(f.temperature))
	}
	if cmd.Flags().Changed("max-tokens") {
		opts = append(opts, rag.WithMaxTokens(f.maxTokens))
	}
	if filter := parseFilterFlags(f.sessions, f.topics, f.eventTypes); !filter.IsEmpty() {
		opts = append(opts, rag.WithFilter(filter))
	}
	return opts
}

var askFlags turnFlags

func init() {
	rootCmd.AddCommand(askCmd)
	askFlags.register(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the most relevant papers",
	Long: `Retrieve the papers closest to the question and ask the language model
to answer from them. No conversation history is kept between invocations.

Examples:
  paperchat ask "Which papers use diffusion for protein design?"
  paperchat ask "new RL benchmarks" --eventtype Oral -n 8 --human`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env := mustChatEnv(ctx)
	defer env.Close()

	question := strings.Join(args, " ")
	answer, err := env.loop.Query(ctx, rag.NewConversation(), question, askFlags.options(cmd)...)
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}

	if humanOutput {
		printAnswerHuman(answer)
	} else {
		outputJSON(answer)
	}
	return nil
}
