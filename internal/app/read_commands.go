package app

import (
	"context"
	"encoding/json"

	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/policy"
	"github.com/geometry-infra/preptools/internal/prep"
	"github.com/geometry-infra/preptools/internal/schema"
	"github.com/geometry-infra/preptools/internal/session"
	"github.com/spf13/cobra"
)

type readFn func(ctx context.Context, r *prep.Reader) (json.RawMessage, error)

func readAnnotations(rpcMethod string) map[string]string {
	return map[string]string{
		schema.AnnotationClass: policy.ClassRead,
		schema.AnnotationRPC:   rpcMethod,
	}
}

func (s *runtimeState) runRead(cmd *cobra.Command, fn readFn) error {
	s.useNetwork()
	reader, err := session.NewReader(s.settings, s.sessionOptions())
	if err != nil {
		return err
	}
	result, err := fn(cmd.Context(), reader)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), result)
}

func (s *runtimeState) newGetPRepCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "getPRep <address>",
		Short:       "Show the registration and delegation state of a PRep",
		Args:        cobra.ExactArgs(1),
		Annotations: readAnnotations(icon.MethodCall),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRead(cmd, func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) {
				return r.GetPRep(ctx, args[0])
			})
		},
	}
}

func (s *runtimeState) newGetPRepsCommand() *cobra.Command {
	var params prep.GetPRepsParams
	cmd := &cobra.Command{
		Use:         "getPReps",
		Short:       "List PReps ordered by delegation",
		Args:        cobra.NoArgs,
		Annotations: readAnnotations(icon.MethodCall),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRead(cmd, func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) {
				return r.GetPReps(ctx, params)
			})
		},
	}
	cmd.Flags().Int64Var(&params.StartRanking, "start-ranking", 0, "First ranking to include (1-based)")
	cmd.Flags().Int64Var(&params.EndRanking, "end-ranking", 0, "Last ranking to include")
	cmd.Flags().Int64Var(&params.BlockHeight, "block-height", 0, "Query state at this block height")
	return cmd
}

// newTermListCommand builds the parameterless term queries.
func (s *runtimeState) newTermListCommand(method, short string) *cobra.Command {
	query := map[string]readFn{
		prep.MethodGetMainPReps: func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) { return r.GetMainPReps(ctx) },
		prep.MethodGetSubPReps:  func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) { return r.GetSubPReps(ctx) },
		prep.MethodGetPRepTerm:  func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) { return r.GetPRepTerm(ctx) },
	}[method]
	return &cobra.Command{
		Use:         method,
		Short:       short,
		Args:        cobra.NoArgs,
		Annotations: readAnnotations(icon.MethodCall),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRead(cmd, query)
		},
	}
}

func (s *runtimeState) newTxResultCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "txresult <tx hash>",
		Short:       "Show the result of a transaction",
		Args:        cobra.ExactArgs(1),
		Annotations: readAnnotations(icon.MethodGetTransactionResult),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRead(cmd, func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) {
				return r.GetTransactionResult(ctx, args[0])
			})
		},
	}
}

func (s *runtimeState) newTxByHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "txbyhash <tx hash>",
		Short:       "Show a transaction by hash",
		Args:        cobra.ExactArgs(1),
		Annotations: readAnnotations(icon.MethodGetTransactionByHash),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRead(cmd, func(ctx context.Context, r *prep.Reader) (json.RawMessage, error) {
				return r.GetTransaction(ctx, args[0])
			})
		},
	}
}
