package chatrunner

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/events"
	"github.com/go-go-golems/plotchat/pkg/mirror"
	"github.com/go-go-golems/plotchat/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

// RunMode defines the execution mode for the chat session.
type RunMode string

const (
	// RunModeChat runs the full screen chat UI.
	RunModeChat RunMode = "chat"
	// RunModeLine reads one message per line and prints the replies.
	RunModeLine RunMode = "line"
	// RunModeBlocking sends a single prompt and prints the reply.
	RunModeBlocking RunMode = "blocking"
	// RunModeInteractive sends a single prompt, then offers to continue in
	// the chat UI.
	RunModeInteractive RunMode = "interactive"
)

// ChatSession holds the validated configuration and executes the chat logic.
// It's typically created and run by the ChatBuilder.
type ChatSession struct {
	ctx            context.Context
	reconciler     *conversation.Reconciler
	transport      conversation.Transport
	router         *events.EventRouter
	ownsRouter     bool
	routerStarted  bool
	topic          string
	hub            *mirror.Hub
	mirrorAddr     string
	uiOptions      []ui.ModelOption
	programOptions []tea.ProgramOption
	mode           RunMode
	prompt         string
	inputReader    io.Reader
	outputWriter   io.Writer
	renderer       *ui.Renderer
}

// Reconciler gives access to the session's conversation, e.g. for inspection
// after Run.
func (cs *ChatSession) Reconciler() *conversation.Reconciler {
	return cs.reconciler
}

// Run executes the chat session based on its configured mode.
func (cs *ChatSession) Run() error {
	if cs.ownsRouter {
		defer func() {
			// a router that was never started still holds its pub/sub
			if !cs.routerStarted {
				_ = cs.router.Close()
			}
		}()
	}

	switch cs.mode {
	case RunModeChat:
		return cs.runChatInternal()
	case RunModeLine:
		return cs.runLineInternal()
	case RunModeBlocking:
		return cs.runBlockingInternal()
	case RunModeInteractive:
		return cs.runInteractiveInternal()
	default:
		return errors.Errorf("unknown run mode: %v", cs.mode)
	}
}

// runWithRouter runs the event router next to f and tears both down once f
// returns. An external router must not be running yet.
func (cs *ChatSession) runWithRouter(f func(ctx context.Context) error) error {
	router := cs.router
	cs.routerStarted = true

	router.AddHandler("event_log", cs.topic, events.LogEventsFunc())
	if cs.hub != nil {
		router.AddHandler("mirror", cs.topic, cs.hub.HandlerFunc())
	}

	eg, childCtx := errgroup.WithContext(cs.ctx)
	childCtx, cancel := context.WithCancel(childCtx)

	closeRouter := func() {
		cancel()
		log.Debug().Msg("Closing router")
		_ = router.Close()
		log.Debug().Msg("Router closed")
	}

	eg.Go(func() error {
		return router.Run(childCtx)
	})

	if cs.hub != nil && cs.mirrorAddr != "" {
		eg.Go(func() error {
			return cs.hub.Run(childCtx, cs.mirrorAddr)
		})
	}

	eg.Go(func() error {
		defer closeRouter()
		select {
		case <-router.Running():
		case <-childCtx.Done():
			return nil
		}
		return f(childCtx)
	})

	log.Debug().Msg("Waiting for errgroup")
	err := eg.Wait()
	log.Debug().Err(err).Msg("Errgroup finished")

	// Don't return context cancellation errors if the original context was cancelled
	if errors.Is(err, context.Canceled) && cs.ctx.Err() == context.Canceled {
		return nil
	}
	return err
}

// runChatInternal handles the full screen chat UI mode.
func (cs *ChatSession) runChatInternal() error {
	backend := ui.NewTransportBackend(cs.reconciler, cs.transport)
	model := ui.NewModel(cs.ctx, backend, cs.uiOptions...)
	p := tea.NewProgram(model, cs.programOptions...)

	log.Debug().Str("component", "chatrunner").Msg("Adding UI event handler")
	cs.router.AddHandler("ui", cs.topic, ui.StreamForwardFunc(p))

	return cs.runWithRouter(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			p.Quit()
		}()

		log.Debug().Str("component", "chatrunner").Msg("Starting Bubble Tea program")
		_, runErr := p.Run()
		log.Debug().Err(runErr).Str("component", "chatrunner").Msg("Bubble Tea program finished")

		// Abandon a turn still in flight so its goroutine ends.
		backend.Interrupt()

		if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return runErr
	})
}

// runLineInternal handles the line mode used when stdout is not a terminal.
func (cs *ChatSession) runLineInternal() error {
	return cs.runWithRouter(func(ctx context.Context) error {
		return ui.RunREPL(ctx, cs.inputReader, cs.outputWriter, cs.reconciler, cs.transport, cs.renderer)
	})
}

// runBlockingInternal sends the prompt once and prints what the turn added.
func (cs *ChatSession) runBlockingInternal() error {
	outcome, err := cs.reconciler.Exchange(cs.ctx, cs.transport, cs.prompt)
	if err != nil {
		return errors.Wrap(err, "could not send prompt")
	}
	if outcome.TurnID == "" {
		return errors.New("prompt is empty")
	}
	if err := ui.PrintOutcome(cs.outputWriter, cs.renderer, cs.prompt, outcome); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	if outcome.Err != nil {
		// Don't return context cancellation errors if the context was cancelled externally
		if errors.Is(outcome.Err, context.Canceled) && cs.ctx.Err() == context.Canceled {
			log.Debug().Msg("Blocking request cancelled by context")
			return nil
		}
		return outcome.Err
	}
	return nil
}

// runInteractiveInternal handles initial blocking run + optional chat transition.
func (cs *ChatSession) runInteractiveInternal() error {
	log.Debug().Msg("Running initial blocking step for interactive mode")
	err := cs.runBlockingInternal()
	if err != nil {
		return errors.Wrap(err, "error during initial blocking step")
	}

	// Use Stderr for prompt asking, as Stdout might be redirected.
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.Debug().Msg("Stderr is not a TTY, skipping chat continuation prompt")
		return nil
	}

	continueInChat, err := askForChatContinuation(os.Stderr, os.Stdin)
	if err != nil {
		return errors.Wrap(err, "failed to ask for chat continuation")
	}
	if !continueInChat {
		log.Debug().Msg("User chose not to continue in chat mode")
		return nil
	}

	log.Debug().Msg("User chose to continue, starting chat UI")
	return cs.runChatInternal()
}

// --- ChatBuilder ---

// ChatBuilder provides a fluent API for configuring and running a chat session.
type ChatBuilder struct {
	err            error // To collect errors during build steps
	ctx            context.Context
	transport      conversation.Transport
	reconcilerOpts []conversation.ReconcilerOption
	router         *events.EventRouter
	topic          string
	hub            *mirror.Hub
	mirrorAddr     string
	uiOptions      []ui.ModelOption
	programOptions []tea.ProgramOption
	mode           RunMode
	prompt         string
	inputReader    io.Reader
	outputWriter   io.Writer
	renderer       *ui.Renderer
}

// NewChatBuilder creates a new builder with default settings.
func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx:            context.Background(),
		topic:          events.DefaultTopic,
		programOptions: []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithAltScreen()},
		uiOptions:      []ui.ModelOption{ui.WithTitle("plotchat")},
		inputReader:    os.Stdin,
		outputWriter:   os.Stdout,
		mode:           RunModeChat,
	}
}

// WithContext sets the context for the chat session.
func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ctx == nil {
		b.err = errors.New("context cannot be nil")
		return b
	}
	b.ctx = ctx
	return b
}

// WithTransport sets the chat backend transport. (Required)
func (b *ChatBuilder) WithTransport(t conversation.Transport) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if t == nil {
		b.err = errors.New("transport cannot be nil")
		return b
	}
	b.transport = t
	return b
}

func (b *ChatBuilder) WithReconcilerOptions(opts ...conversation.ReconcilerOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.reconcilerOpts = append(b.reconcilerOpts, opts...)
	return b
}

// WithUIOptions adds options for configuring the chat model.
func (b *ChatBuilder) WithUIOptions(opts ...ui.ModelOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.uiOptions = append(b.uiOptions, opts...)
	return b
}

// WithProgramOptions replaces the options for the bubbletea program.
func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.programOptions = opts
	return b
}

// WithMode sets the execution mode.
func (b *ChatBuilder) WithMode(mode RunMode) *ChatBuilder {
	if b.err != nil {
		return b
	}
	switch mode {
	case RunModeChat, RunModeLine, RunModeBlocking, RunModeInteractive:
		b.mode = mode
	default:
		b.err = errors.Errorf("invalid run mode: %s", mode)
	}
	return b
}

// WithPrompt sets the message sent in blocking and interactive mode.
func (b *ChatBuilder) WithPrompt(prompt string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.prompt = prompt
	return b
}

// WithInputReader sets where line mode reads from. Defaults to os.Stdin.
func (b *ChatBuilder) WithInputReader(r io.Reader) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if r == nil {
		b.err = errors.New("input reader cannot be nil")
		return b
	}
	b.inputReader = r
	return b
}

// WithOutputWriter sets the writer for line, blocking and interactive modes.
// Defaults to os.Stdout.
func (b *ChatBuilder) WithOutputWriter(w io.Writer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("output writer cannot be nil")
		return b
	}
	b.outputWriter = w
	return b
}

func (b *ChatBuilder) WithRenderer(r *ui.Renderer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.renderer = r
	return b
}

// WithExternalRouter provides an existing EventRouter instance to use.
// If not provided, an internal router will be created and managed.
func (b *ChatBuilder) WithExternalRouter(router *events.EventRouter) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.router = router
	return b
}

// WithTopic sets the topic conversation events are published on.
func (b *ChatBuilder) WithTopic(topic string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if topic == "" {
		b.err = errors.New("topic cannot be empty")
		return b
	}
	b.topic = topic
	return b
}

// WithMirror feeds hub from the event bus and, if addr is set, serves it.
func (b *ChatBuilder) WithMirror(hub *mirror.Hub, addr string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.hub = hub
	b.mirrorAddr = addr
	return b
}

// Build validates the builder configuration and creates the session.
func (b *ChatBuilder) Build() (*ChatSession, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.transport == nil {
		return nil, errors.New("transport is required (use WithTransport)")
	}
	if b.mode == "" {
		return nil, errors.New("run mode is required (use WithMode)")
	}
	if (b.mode == RunModeBlocking || b.mode == RunModeInteractive) && b.prompt == "" {
		return nil, errors.New("prompt is required for blocking or interactive mode (use WithPrompt)")
	}

	router := b.router
	ownsRouter := false
	if router == nil {
		var err error
		router, err = events.NewEventRouter()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create event router")
		}
		ownsRouter = true
	}

	sink := events.NewWatermillSink(router.Publisher, b.topic)
	reconcilerOpts := append([]conversation.ReconcilerOption{}, b.reconcilerOpts...)
	reconcilerOpts = append(reconcilerOpts, conversation.WithEventSink(sink))

	renderer := b.renderer
	if renderer == nil && b.mode != RunModeChat {
		renderer = ui.NewPlainRenderer()
	}

	session := &ChatSession{
		ctx:            b.ctx,
		reconciler:     conversation.NewReconciler(reconcilerOpts...),
		transport:      b.transport,
		router:         router,
		ownsRouter:     ownsRouter,
		topic:          b.topic,
		hub:            b.hub,
		mirrorAddr:     b.mirrorAddr,
		uiOptions:      b.uiOptions,
		programOptions: b.programOptions,
		mode:           b.mode,
		prompt:         b.prompt,
		inputReader:    b.inputReader,
		outputWriter:   b.outputWriter,
		renderer:       renderer,
	}

	return session, nil
}

// askForChatContinuation prompts on tty whether to continue in chat mode.
func askForChatContinuation(tty io.Writer, in io.Reader) (bool, error) {
	prompter := &input.UI{
		Writer: tty,
		Reader: in,
	}

	_, _ = fmt.Fprint(tty, "\n")
	query := "Do you want to continue in chat mode? [Y/n]"
	answer, err := prompter.Ask(query, &input.Options{
		Default:  "y",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}

	_, _ = fmt.Fprint(tty, "\n")

	return answer == "y" || answer == "Y" || answer == "", nil
}
