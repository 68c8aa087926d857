package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/geometry-infra/preptools/internal/config"
	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/log"
	"github.com/geometry-infra/preptools/internal/model"
	"github.com/geometry-infra/preptools/internal/out"
	"github.com/geometry-infra/preptools/internal/policy"
	"github.com/geometry-infra/preptools/internal/schema"
	"github.com/geometry-infra/preptools/internal/session"
	"github.com/geometry-infra/preptools/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	now      func() time.Time
	password session.PasswordFunc
}

func NewRunner() *Runner {
	return NewRunnerWithIO(os.Stdin, os.Stdout, os.Stderr)
}

// NewRunnerWithIO also replaces stdin, which answers confirmation prompts.
func NewRunnerWithIO(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

// SetPasswordPrompt replaces the terminal password prompt.
func (r *Runner) SetPasswordPrompt(fn session.PasswordFunc) {
	r.password = fn
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	network     *model.NetworkInfo

	// Raw values of flags whose absence must be distinguishable.
	url       string
	nid       string
	keystore  string
	password  string
	stepLimit string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.ExecuteContext(context.Background()))
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Register and manage ICON PReps from the command line",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			s.bindOptionalFlags(cmd)
			settings, err := config.Load(s.flags)
			if err != nil {
				return err
			}
			s.settings = settings
			log.Init(s.runner.stderr, settings.LogLevel, settings.LogJSON)

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			return policy.CheckCommandAllowed(settings.EnableCommands, path, cmd.Annotations[schema.AnnotationClass])
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&s.url, "url", "u", "", "Node URL or network alias ("+strings.Join(icon.NetworkAliases(), ", ")+")")
	pf.StringVarP(&s.nid, "nid", "n", "", "Network id (decimal or 0x hex)")
	pf.StringVarP(&s.flags.ConfigPath, "config", "c", "", "Path to JSON config file")
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command names or classes read/write (comma-separated)")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Node request timeout")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
	pf.BoolVar(&s.flags.LogJSON, "log-json", false, "Write logs as JSON")

	cmd.AddCommand(s.newRegisterPRepCommand())
	cmd.AddCommand(s.newUnregisterPRepCommand())
	cmd.AddCommand(s.newSetPRepCommand())
	cmd.AddCommand(s.newSetGovernanceVariablesCommand())
	cmd.AddCommand(s.newGetPRepCommand())
	cmd.AddCommand(s.newGetPRepsCommand())
	cmd.AddCommand(s.newTermListCommand("getMainPReps", "List main PReps of the current term"))
	cmd.AddCommand(s.newTermListCommand("getSubPReps", "List sub PReps of the current term"))
	cmd.AddCommand(s.newTermListCommand("getPRepTerm", "Show the current PRep term"))
	cmd.AddCommand(s.newTxResultCommand())
	cmd.AddCommand(s.newTxByHashCommand())
	cmd.AddCommand(s.newKeystoreCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// bindOptionalFlags turns flags the user actually set into overrides;
// untouched flags leave the config file and environment in effect.
func (s *runtimeState) bindOptionalFlags(cmd *cobra.Command) {
	optional := func(name string, v *string) *string {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			return nil
		}
		value := *v
		return &value
	}
	s.flags.URL = optional("url", &s.url)
	s.flags.NID = optional("nid", &s.nid)
	s.flags.Keystore = optional("keystore", &s.keystore)
	s.flags.Password = optional("password", &s.password)
	s.flags.StepLimit = optional("step-limit", &s.stepLimit)
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}
}

func (s *runtimeState) sessionOptions() session.Options {
	return session.Options{
		Stdin:    s.runner.stdin,
		Stderr:   s.runner.stderr,
		Password: s.runner.password,
	}
}

// useNetwork records the node a command talks to for the envelope meta.
func (s *runtimeState) useNetwork() {
	endpoint, err := icon.ResolveURL(s.settings.URL)
	if err != nil {
		endpoint = s.settings.URL
	}
	s.network = &model.NetworkInfo{URL: endpoint, NID: s.settings.NID}
}

func (s *runtimeState) emitSuccess(commandPath string, data any) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Error:   nil,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.network,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	typ := clierr.KindInternal
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		typ = cErr.Kind
		message = cErr.Error()
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.network,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
