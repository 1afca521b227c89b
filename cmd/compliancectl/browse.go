package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
)

const browseHelp = `commands:
  n, p            next or previous page
  g <page>        go to page (1-based)
  s <status>      filter by status: full, partial, non, all
  f [level]       filter by finding level, empty clears
  v <requirement> toggle the viewed mark
  r               reload counts and the current page
  q               quit
`

// browseOutcomes runs a line-oriented outcome browser until q or EOF.
func browseOutcomes(
	ctx context.Context,
	view *usecase.OutcomeView,
	filter usecase.OutcomeFilter,
	page int,
	in io.Reader,
	out io.Writer,
) error {
	if filter != (usecase.OutcomeFilter{}) {
		if err := view.SetFilter(ctx, filter); err != nil {
			return err
		}
	}
	if page > 0 {
		if err := view.SetPage(ctx, page); err != nil {
			return err
		}
	}
	if err := view.Refresh(ctx); err != nil {
		return err
	}
	if err := renderView(out, view.Current()); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		command, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		state := view.Current()
		switch command {
		case "":
			continue
		case "q", "quit":
			return nil
		case "h", "help", "?":
			fmt.Fprint(out, browseHelp)
			continue
		case "n":
			if state.Result != nil && state.Result.Last {
				fmt.Fprintln(out, "already on the last page")
				continue
			}
			err = view.SetPage(ctx, state.Page+1)
		case "p":
			if state.Page == 0 {
				fmt.Fprintln(out, "already on the first page")
				continue
			}
			err = view.SetPage(ctx, state.Page-1)
		case "g":
			var n int
			n, err = strconv.Atoi(arg)
			if err == nil && n < 1 {
				err = fmt.Errorf("page must be 1 or more")
			}
			if err == nil {
				err = view.SetPage(ctx, n-1)
			}
		case "s":
			var status domain.ComplianceStatus
			status, err = domain.ParseComplianceStatus(arg)
			if err == nil {
				err = view.SetFilter(ctx, usecase.OutcomeFilter{Status: status, FindingLevel: state.Filter.FindingLevel})
			}
		case "f":
			err = view.SetFilter(ctx, usecase.OutcomeFilter{Status: state.Filter.Status, FindingLevel: arg})
		case "v":
			if arg == "" {
				err = errors.New("v needs a requirement id")
				break
			}
			mark := "not viewed"
			if view.ToggleViewed(arg) {
				mark = "viewed"
			}
			fmt.Fprintf(out, "%s marked %s\n", arg, mark)
			continue
		case "r":
			err = view.Refresh(ctx)
		default:
			fmt.Fprintf(out, "unknown command %q, h for help\n", command)
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err := renderView(out, view.Current()); err != nil {
			return err
		}
	}
}

func renderView(w io.Writer, state usecase.ViewState) error {
	if state.CountsOK {
		fmt.Fprint(w, formatCounts(state.Counts))
	}
	status := string(state.Filter.Status)
	if status == "" {
		status = "all"
	}
	fmt.Fprintf(w, "filter: status=%s finding=%s\n", status, orDash(state.Filter.FindingLevel))
	if state.Result == nil {
		_, err := fmt.Fprintln(w, "no outcomes loaded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tREQUIREMENT\tSTATUS\tFINDING\tEVIDENCE")
	for _, outcome := range state.Result.Content {
		mark := " "
		if state.Viewed[outcome.RequirementID] {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			mark,
			outcome.RequirementID,
			outcome.Status,
			orDash(outcome.FindingLevel),
			len(outcome.Evidence),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d of %d (%d outcomes)\n",
		state.Result.Number+1, max(state.Result.TotalPages, 1), state.Result.TotalElements)
	return err
}
