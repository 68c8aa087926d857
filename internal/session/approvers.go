package session

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/log"
	"github.com/geometry-infra/preptools/internal/out"
	"github.com/geometry-infra/preptools/internal/prep"
)

const requestTitle = "Request"

// PrintApprover prints each request and always approves.
func PrintApprover(w io.Writer) prep.Approver {
	return prep.ApproverFunc(func(env icon.Envelope) bool {
		printRequest(w, env)
		return true
	})
}

// ConfirmApprover prints each request and, unless yes is set, reads one
// answer line. Only an exact "n" declines; an empty answer or EOF proceeds.
func ConfirmApprover(in io.Reader, w io.Writer, yes bool) prep.Approver {
	reader := bufio.NewReader(in)
	return prep.ApproverFunc(func(env icon.Envelope) bool {
		printRequest(w, env)
		if yes {
			return true
		}
		fmt.Fprint(w, "> Continue? [Y/n]")
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			log.Session.Warn().Err(err).Msg("read confirmation")
		}
		return strings.TrimRight(line, "\r\n") != "n"
	})
}

func printRequest(w io.Writer, env icon.Envelope) {
	if err := out.PrintRequest(w, requestTitle, env.RPCMethod(), env.Fields()); err != nil {
		log.Session.Warn().Err(err).Msg("print request")
	}
}
