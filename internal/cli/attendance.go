package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/app"
	"github.com/nhle/workdesk/internal/attendance"
	"github.com/nhle/workdesk/internal/model"
)

// NewAttendanceCommand creates the attendance command, which prints
// today's record and how long until checkout is allowed.
func NewAttendanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "attendance",
		Short:         "Show today's attendance and checkout eligibility",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, app.WithoutRealtime())
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.Session.Identity() == nil {
				return ErrNotLoggedIn
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			today, err := rt.API.TodayAttendance(ctx)
			if err != nil {
				if api.IsAuthError(err) {
					rt.Session.Logout(context.Background())
					return ErrNotLoggedIn
				}
				return fmt.Errorf("loading attendance: %s", api.UserMessage(err, err.Error()))
			}

			rt.Timer.Track(today)
			status := rt.Timer.Status()
			rt.Timer.Stop()

			printAttendance(cmd.OutOrStdout(), today, status)
			return nil
		},
	}
}

func printAttendance(w io.Writer, day *model.AttendanceDay, status attendance.Status) {
	if day == nil || day.CheckIn == nil {
		fmt.Fprintln(w, "Not checked in today")
		return
	}

	fmt.Fprintf(w, "Status     %s\n", day.Status)
	fmt.Fprintf(w, "Check-in   %s\n", day.CheckIn.Local().Format("15:04:05"))

	switch {
	case day.CheckOut != nil:
		fmt.Fprintf(w, "Check-out  %s\n", day.CheckOut.Local().Format("15:04:05"))
		if day.WorkHours != nil {
			fmt.Fprintf(w, "Worked     %.2fh\n", *day.WorkHours)
		}
	case status.CanCheckout:
		fmt.Fprintln(w, "Checkout   available now")
	default:
		fmt.Fprintf(w, "Checkout   available in %s\n", status.Formatted())
	}
}
