package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rydesun/watchdir"
	"github.com/rydesun/watchdir/internal/xlog"
)

var rootCommand = &cobra.Command{
	Use:   "watchdir <root_dir>",
	Short: "Recursively watch a directory tree and print the changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

var rootConfiguration struct {
	includeHidden bool
	debug         bool
	extraEvents   string
	excludeEvents string
	canonicalize  bool
	oneline       bool
	noPrefix      bool
	showTime      bool
	colorMode     string
	completion    string
	throttle      uint
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVar(&rootConfiguration.includeHidden, "include-hidden", false, "Watch dot-prefixed directories instead of excluding them")
	flags.BoolVar(&rootConfiguration.debug, "debug", false, "Print diagnostic logging to stderr")
	flags.StringVar(&rootConfiguration.extraEvents, "extra-events", "", "Comma-separated optional event categories to request: modify,access,attrib,open,close")
	flags.StringVar(&rootConfiguration.excludeEvents, "exclude-events", "", "Comma-separated event kind names to omit from the printed output")
	flags.BoolVar(&rootConfiguration.canonicalize, "canonicalize", false, "Resolve symlinks in printed paths")
	flags.BoolVar(&rootConfiguration.oneline, "oneline", false, "Omit the running event counter")
	flags.BoolVar(&rootConfiguration.noPrefix, "no-prefix", false, "Print paths relative to root_dir instead of absolute")
	flags.BoolVar(&rootConfiguration.showTime, "time", false, "Prefix each line with a timestamp")
	flags.StringVar(&rootConfiguration.colorMode, "color", "auto", "When to colorize output: auto, always, never")
	flags.StringVar(&rootConfiguration.completion, "completion", "", "Print a shell completion script and exit: bash, fish, zsh")
	flags.UintVar(&rootConfiguration.throttle, "throttle-modify", 0, "Suppress repeat Modify events for the same path within this many milliseconds")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "watchdir: "+format+"\n", args...)
	os.Exit(1)
}

func parseExtraEvents(csv string) ([]watchdir.ExtraEvent, error) {
	if csv == "" {
		return nil, nil
	}
	var out []watchdir.ExtraEvent
	for _, name := range strings.Split(csv, ",") {
		switch strings.TrimSpace(name) {
		case "modify":
			out = append(out, watchdir.ExtraModify)
		case "access":
			out = append(out, watchdir.ExtraAccess)
		case "attrib":
			out = append(out, watchdir.ExtraAttrib)
		case "open":
			out = append(out, watchdir.ExtraOpen)
		case "close":
			out = append(out, watchdir.ExtraClose)
		default:
			return nil, fmt.Errorf("unknown event category %q", name)
		}
	}
	return out, nil
}

func parseExcludeKinds(csv string) map[watchdir.Kind]bool {
	excluded := make(map[watchdir.Kind]bool)
	if csv == "" {
		return excluded
	}
	all := []watchdir.Kind{
		watchdir.Create, watchdir.Delete, watchdir.Move, watchdir.MoveAway, watchdir.MoveInto,
		watchdir.Modify, watchdir.Access, watchdir.Attrib, watchdir.Open, watchdir.Close,
		watchdir.Unmount, watchdir.MoveTop, watchdir.DeleteTop, watchdir.UnmountTop,
		watchdir.AccessTop, watchdir.AttribTop, watchdir.OpenTop, watchdir.CloseTop,
		watchdir.Overflow, watchdir.Ignored, watchdir.Unknown,
	}
	byName := make(map[string]watchdir.Kind, len(all))
	for _, k := range all {
		byName[strings.ToLower(k.String())] = k
	}
	for _, name := range strings.Split(csv, ",") {
		if k, ok := byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			excluded[k] = true
		}
	}
	return excluded
}

func setupColor(mode string) {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto", "":
		// Leave fatih/color's own terminal detection in place.
	default:
		fatal("invalid --color value %q", mode)
	}
}

func run(command *cobra.Command, arguments []string) error {
	if rootConfiguration.completion != "" {
		return generateCompletion(command, rootConfiguration.completion)
	}
	if len(arguments) != 1 {
		command.Usage()
		fatal("exactly one root_dir argument is required")
	}

	xlog.DebugEnabled = rootConfiguration.debug
	setupColor(rootConfiguration.colorMode)

	extra, err := parseExtraEvents(rootConfiguration.extraEvents)
	if err != nil {
		fatal("%s", err)
	}

	root := arguments[0]
	logger := xlog.Root.Sublogger("watchdir")
	opts := []watchdir.Option{
		watchdir.WithExtraEvents(extra...),
		watchdir.WithWarnFunc(logger.Warnf),
		watchdir.WithTraceFunc(func(raw watchdir.RawEvent) {
			logger.Debugf("wd=%d mask=%s cookie=%d name=%q", raw.WD, xlog.MaskString(raw.Mask), raw.Cookie, raw.Name)
		}),
	}
	if rootConfiguration.includeHidden {
		opts = append(opts, watchdir.WithIncludeDotDirs())
	}

	w, err := watchdir.Open(root, opts...)
	if err != nil {
		fatal("%s", err)
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := newPrinter(printerConfig{
		root:         w.Root(),
		noPrefix:     rootConfiguration.noPrefix,
		oneline:      rootConfiguration.oneline,
		showTime:     rootConfiguration.showTime,
		canonicalize: rootConfiguration.canonicalize,
		exclude:      parseExcludeKinds(rootConfiguration.excludeEvents),
		throttle:     time.Duration(rootConfiguration.throttle) * time.Millisecond,
	}, os.Stdout)

	for {
		ev, at, err := w.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.Print(ev, at)

		switch ev.Kind {
		case watchdir.DeleteTop, watchdir.UnmountTop:
			return nil
		}
	}
}

func generateCompletion(command *cobra.Command, shell string) error {
	switch shell {
	case "bash":
		return command.GenBashCompletion(os.Stdout)
	case "fish":
		return command.GenFishCompletion(os.Stdout, true)
	case "zsh":
		return command.GenZshCompletion(os.Stdout)
	default:
		return fmt.Errorf("unknown shell %q for --completion", shell)
	}
}
