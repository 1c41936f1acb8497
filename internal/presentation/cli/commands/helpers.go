package commands

import (
	"fmt"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/reconcile"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/presentation/cli/output"
)

// resolveProfileID returns the profile with id, or the active one when id is empty.
func resolveProfileID(app *AppContext, id string) (profile.Profile, error) {
	book := app.Container.Profiles()
	if id == "" {
		id = book.ActiveProfileID()
	}
	p, ok := book.Profiles().Find(id)
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", domainErrors.ErrProfileNotFound, id)
	}
	return p, nil
}

// disconnectOnAuth moves the controller to disconnected on an expired session
// and points the user at auth login.
func disconnectOnAuth(app *AppContext, err error) error {
	if domainErrors.IsAuthExpired(err) {
		app.Container.Controller().Disconnect()
		return fmt.Errorf("%w (run 'docsync auth login')", err)
	}
	return err
}

// pushTable lays out push results.
func pushTable(f *output.Formatter, results []reconcile.PushResult) output.TableData {
	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "RESULT"},
			{Header: "FILE"},
			{Header: "DOCUMENT"},
			{Header: "TIME", Align: output.AlignRight},
			{Header: "DETAIL"},
		},
	}
	for _, r := range results {
		result := f.Colorize("ok", output.ColorGreen)
		detail := ""
		switch {
		case r.Err != nil:
			result = f.Colorize("failed", output.ColorRed)
			detail = r.Err.Error()
		case r.SummaryFailed:
			detail = "summary unavailable"
		}
		data.Rows = append(data.Rows, []string{
			result,
			r.FileName,
			r.DocumentID,
			r.Duration.Round(10 * time.Millisecond).String(),
			detail,
		})
	}
	return data
}
