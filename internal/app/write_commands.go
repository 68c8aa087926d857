package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/icon/wallet"
	"github.com/geometry-infra/preptools/internal/model"
	"github.com/geometry-infra/preptools/internal/policy"
	"github.com/geometry-infra/preptools/internal/prep"
	"github.com/geometry-infra/preptools/internal/schema"
	"github.com/geometry-infra/preptools/internal/session"
	"github.com/geometry-infra/preptools/internal/units"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var writeAnnotations = map[string]string{
	schema.AnnotationClass: policy.ClassWrite,
	schema.AnnotationRPC:   icon.MethodSendTransaction,
}

func (s *runtimeState) addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.keystore, "keystore", "k", "", "Path to the operator keystore file")
	cmd.Flags().StringVarP(&s.password, "password", "p", "", "Keystore password (prompted when omitted)")
	cmd.Flags().BoolVarP(&s.flags.Yes, "yes", "y", false, "Send without asking for confirmation")
	cmd.Flags().StringVar(&s.stepLimit, "step-limit", "", "Step limit (decimal or 0x hex)")
}

// runWrite builds an operation, then submits it through a confirming writer.
// Operation errors are reported before the keystore is unlocked.
func (s *runtimeState) runWrite(cmd *cobra.Command, build func() (prep.Operation, error)) error {
	op, err := build()
	if err != nil {
		return err
	}
	if err := op.Validate(); err != nil {
		return err
	}
	s.useNetwork()
	writer, err := session.NewWriter(s.settings, s.sessionOptions())
	if err != nil {
		return err
	}
	resp, err := writer.Submit(cmd.Context(), op)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), writeResult(op, writer.Address(), resp))
}

func writeResult(op prep.Operation, from string, resp *icon.Response) model.WriteResult {
	result := model.WriteResult{
		Method:   op.Method(),
		From:     from,
		ValueICX: units.FormatICX(op.Value()),
	}
	if resp == nil {
		result.Declined = true
		return result
	}
	var hash string
	if err := json.Unmarshal(resp.Result, &hash); err == nil {
		result.TxHash = hash
	}
	result.Response = resp
	return result
}

type prepFieldFlags struct {
	jsonPath string
	fields   prep.PRepFields
}

func (f *prepFieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.jsonPath, "prep-json", "", "JSON file with PRep fields; flags override file values")
	cmd.Flags().StringVar(&f.fields.Name, "name", "", "PRep name")
	cmd.Flags().StringVar(&f.fields.Email, "email", "", "Contact email")
	cmd.Flags().StringVar(&f.fields.Country, "country", "", "ISO 3166-1 alpha-3 country code")
	cmd.Flags().StringVar(&f.fields.City, "city", "", "City")
	cmd.Flags().StringVar(&f.fields.Website, "website", "", "Website URL")
	cmd.Flags().StringVar(&f.fields.Details, "details", "", "URL of the PRep details JSON")
	cmd.Flags().StringVar(&f.fields.P2PEndpoint, "p2p-endpoint", "", "Node p2p endpoint (host:port)")
	cmd.Flags().StringVar(&f.fields.NodeAddress, "node-address", "", "Address of the block-producing node key")
	cmd.Flags().StringVar(&f.fields.PublicKey, "public-key", "", "Operator public key (0x hex)")
}

func (f *prepFieldFlags) resolve() (prep.PRepFields, error) {
	if strings.TrimSpace(f.jsonPath) == "" {
		return f.fields, nil
	}
	base, err := loadPRepJSON(f.jsonPath)
	if err != nil {
		return prep.PRepFields{}, err
	}
	return base.Merge(f.fields), nil
}

func loadPRepJSON(path string) (prep.PRepFields, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return prep.PRepFields{}, clierr.Wrap(clierr.CodeUsage, "expand --prep-json path", err)
	}
	buf, err := os.ReadFile(expanded)
	if err != nil {
		return prep.PRepFields{}, clierr.Wrap(clierr.CodeUsage, "read --prep-json", err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	var fields prep.PRepFields
	if err := dec.Decode(&fields); err != nil {
		return prep.PRepFields{}, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("parse --prep-json %s", path), err)
	}
	return fields, nil
}

func (s *runtimeState) newRegisterPRepCommand() *cobra.Command {
	var fields prepFieldFlags
	cmd := &cobra.Command{
		Use:         "registerPRep",
		Short:       "Register the keystore account as a PRep (locks 2000 ICX)",
		Args:        cobra.NoArgs,
		Annotations: writeAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runWrite(cmd, func() (prep.Operation, error) {
				f, err := fields.resolve()
				if err != nil {
					return nil, err
				}
				return prep.RegisterPRep{PRepFields: f}, nil
			})
		},
	}
	fields.register(cmd)
	s.addWriteFlags(cmd)
	return cmd
}

func (s *runtimeState) newUnregisterPRepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "unregisterPRep",
		Short:       "Unregister the keystore account",
		Args:        cobra.NoArgs,
		Annotations: writeAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runWrite(cmd, func() (prep.Operation, error) {
				return prep.UnregisterPRep{}, nil
			})
		},
	}
	s.addWriteFlags(cmd)
	return cmd
}

func (s *runtimeState) newSetPRepCommand() *cobra.Command {
	var fields prepFieldFlags
	cmd := &cobra.Command{
		Use:         "setPRep",
		Short:       "Update registration details of the keystore account",
		Args:        cobra.NoArgs,
		Annotations: writeAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runWrite(cmd, func() (prep.Operation, error) {
				f, err := fields.resolve()
				if err != nil {
					return nil, err
				}
				return prep.SetPRep{PRepFields: f}, nil
			})
		},
	}
	fields.register(cmd)
	s.addWriteFlags(cmd)
	return cmd
}

func (s *runtimeState) newSetGovernanceVariablesCommand() *cobra.Command {
	var irepLoop, irepICX string
	cmd := &cobra.Command{
		Use:         "setGovernanceVariables",
		Short:       "Propose a new irep for the next term",
		Args:        cobra.NoArgs,
		Annotations: writeAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runWrite(cmd, func() (prep.Operation, error) {
				irep, err := units.NormalizeAmount(irepLoop, irepICX, units.ICXDecimals)
				if err != nil {
					return nil, clierr.Wrap(clierr.CodeUsage, "--irep or --irep-icx", err)
				}
				return prep.SetGovernanceVariables{IRep: irep}, nil
			})
		},
	}
	cmd.Flags().StringVar(&irepLoop, "irep", "", "irep in loop (decimal or 0x hex)")
	cmd.Flags().StringVar(&irepICX, "irep-icx", "", "irep in ICX (decimal, e.g. 37500)")
	s.addWriteFlags(cmd)
	return cmd
}

// newKeystoreCommand creates a fresh operator keystore.
func (s *runtimeState) newKeystoreCommand() *cobra.Command {
	var light bool
	cmd := &cobra.Command{
		Use:   "keystore <path>",
		Short: "Create a new keystore file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := s.settings.Password
			if password == "" {
				prompt := s.runner.password
				if prompt == nil {
					prompt = session.TerminalPassword(s.runner.stderr)
				}
				var err error
				if password, err = prompt("> Password: "); err != nil {
					return clierr.Keystore("read password", err)
				}
			}
			if len(password) < 8 {
				return clierr.New(clierr.CodeUsage, "password must be at least 8 characters")
			}
			w, err := wallet.Generate()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "generate key", err)
			}
			path, err := homedir.Expand(args[0])
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "expand keystore path", err)
			}
			if err := w.Save(path, password, light); err != nil {
				return clierr.Keystore("write keystore", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.KeystoreInfo{
				Address:   w.Address(),
				Path:      path,
				PublicKey: w.PublicKey(),
			})
		},
	}
	cmd.Flags().StringVarP(&s.password, "password", "p", "", "Keystore password (prompted when omitted)")
	cmd.Flags().BoolVar(&light, "light", false, "Use light scrypt parameters (test keys only)")
	return cmd
}
