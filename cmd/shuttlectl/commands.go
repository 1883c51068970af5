package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/geo"
	"campus_shuttle/internal/models"
	"campus_shuttle/internal/tracker"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"signup":  signupCmd,
	"signin":  signinCmd,
	"signout": signoutCmd,
	"refresh": refreshCmd,
	"whoami":  whoamiCmd,
	"watch":   watchCmd,
	"ride":    rideCmd,
	"shift":   shiftCmd,
	"markers": markersCmd,
}

var commandHelp = []string{
	"signup student|driver --email E --password P --name N --phone X [--license L]",
	"signin [--email E --password P]",
	"signout",
	"refresh                       rotate the saved access token",
	"whoami                        show the signed-in user and role",
	"watch [--for 5m]              follow active shuttles and your ride",
	"ride start <code> | complete",
	"shift register <vehicle> [--route regular|mens_hostel] [--seats 22]",
	"shift on | off | report <lat> <lon>",
	"markers                       print active shuttles as GeoJSON",
}

func (a *app) accounts() *tracker.Accounts {
	return tracker.NewAccounts(a.backend, a.cfg.RequestTimeout, a.log)
}

func (a *app) currentUser(ctx context.Context) (*backend.Session, error) {
	s, err := a.backend.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, tracker.ErrNotSignedIn
	}
	return s, nil
}

func (a *app) keep(s *backend.Session) error {
	if err := a.session.Save(s); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func signupCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: signup student|driver [flags]")
	}
	role, ok := models.ParseRole(args[0])
	if !ok {
		return fmt.Errorf("unknown role %q", args[0])
	}

	var in tracker.SignupInput
	flags := pflag.NewFlagSet("signup", pflag.ContinueOnError)
	flags.StringVar(&in.Email, "email", a.cfg.Email, "account email (students need a college address)")
	flags.StringVar(&in.Password, "password", a.cfg.Password, "password")
	flags.StringVar(&in.Name, "name", "", "full name")
	flags.StringVar(&in.Phone, "phone", "", "phone number")
	flags.StringVar(&in.LicenseNumber, "license", "", "driving license number (drivers)")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	var (
		s   *backend.Session
		err error
	)
	if role == models.RoleDriver {
		s, err = a.accounts().SignUpDriver(ctx, in)
	} else {
		s, err = a.accounts().SignUpStudent(ctx, in)
	}
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Println("Account created; confirm your email, then sign in.")
		return nil
	}
	fmt.Printf("Signed up %s as %s\n", s.User.Email, role)
	return a.keep(s)
}

func signinCmd(ctx context.Context, a *app, args []string) error {
	var email, password string
	flags := pflag.NewFlagSet("signin", pflag.ContinueOnError)
	flags.StringVar(&email, "email", a.cfg.Email, "account email")
	flags.StringVar(&password, "password", a.cfg.Password, "password")
	if err := flags.Parse(args); err != nil {
		return err
	}
	s, err := a.accounts().SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", s.User.Email)
	return a.keep(s)
}

func signoutCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.accounts().SignOut(ctx); err != nil {
		return err
	}
	if err := a.session.Clear(); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	fmt.Println("Signed out")
	return nil
}

func refreshCmd(ctx context.Context, a *app, _ []string) error {
	if a.remote == nil {
		return errors.New("refresh needs the remote backend")
	}
	s, err := a.remote.RefreshSession(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Session valid until %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
	return a.keep(s)
}

func whoamiCmd(ctx context.Context, a *app, _ []string) error {
	tr := tracker.NewSessionTracker(a.backend, a.backend, a.cfg.RequestTimeout, a.log)
	stop, err := tr.Start(ctx)
	if err != nil {
		return err
	}
	defer stop()
	state := tr.Current()
	if !state.SignedIn() {
		fmt.Println("Not signed in")
		return nil
	}
	fmt.Printf("%s (%s) id=%s\n", state.Email, state.Role, state.UserID)
	return nil
}

func watchCmd(ctx context.Context, a *app, args []string) error {
	var duration time.Duration
	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flags.DurationVar(&duration, "for", 0, "stop after this long (0 runs until interrupted)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	dash := tracker.NewDashboard(a.backend, tracker.DashboardOptions{
		Timeout:      a.cfg.RequestTimeout,
		DemoShuttles: a.cfg.DemoShuttles,
		Log:          a.log,
	})
	stop, err := dash.Start(ctx, printSnapshot)
	if err != nil {
		return err
	}
	defer stop()

	<-ctx.Done()
	return nil
}

func printSnapshot(s tracker.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", time.Now().Format(time.TimeOnly))
	switch {
	case s.Session.Guest:
		b.WriteString("guest")
	case s.Session.SignedIn():
		fmt.Fprintf(&b, "%s (%s)", s.Session.Email, s.Session.Role)
	default:
		b.WriteString("signed out")
	}
	if s.ActiveRide != nil {
		fmt.Fprintf(&b, ", riding %s since %s", s.ActiveRide.VehicleCode, s.ActiveRide.CreatedAt.Local().Format(time.Kitchen))
	}
	fmt.Fprintf(&b, ", %d active shuttles\n", len(s.Shuttles))
	for _, sh := range s.Shuttles {
		full := ""
		if sh.IsFull() {
			full = " FULL"
		}
		fmt.Fprintf(&b, "  %s  %-11s %s%s\n", sh.DisplayCode(), sh.RouteType.Label(), sh.SeatsLabel(), full)
	}
	fmt.Print(b.String())
}

func rideCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ride start <code> | ride complete")
	}
	dash := tracker.NewDashboard(a.backend, tracker.DashboardOptions{Timeout: a.cfg.RequestTimeout, Log: a.log})
	stop, err := dash.Start(ctx, nil)
	if err != nil {
		return err
	}
	defer stop()

	switch args[0] {
	case "start":
		if len(args) != 2 {
			return errors.New("usage: ride start <code>")
		}
		ride, err := dash.StartRide(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Boarded %s (ride %s)\n", ride.VehicleCode, ride.ID)
	case "complete":
		ride, err := dash.CompleteRide(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Ride on %s completed\n", ride.VehicleCode)
	default:
		return fmt.Errorf("unknown ride command %q", args[0])
	}
	return nil
}

func shiftCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: shift register|on|off|report")
	}
	s, err := a.currentUser(ctx)
	if err != nil {
		return err
	}
	shift := tracker.NewShift(a.backend, a.cfg.RequestTimeout, a.log)

	switch args[0] {
	case "register":
		return registerShuttle(ctx, a, args[1:])
	case "on", "off":
		shuttle, err := shift.SetOnDuty(ctx, s.User.ID, args[0] == "on")
		if err != nil {
			return err
		}
		fmt.Printf("Shuttle %s is now %s duty\n", shuttle.DisplayCode(), args[0])
	case "report":
		if len(args) != 3 {
			return errors.New("usage: shift report <lat> <lon>")
		}
		lat, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("longitude: %w", err)
		}
		if _, err := shift.ReportPosition(ctx, s.User.ID, lat, lon); err != nil {
			return err
		}
		fmt.Println("Position reported")
	default:
		return fmt.Errorf("unknown shift command %q", args[0])
	}
	return nil
}

func registerShuttle(ctx context.Context, a *app, args []string) error {
	if a.remote == nil {
		return errors.New("registering a shuttle needs the remote backend")
	}
	var route string
	var seats int
	flags := pflag.NewFlagSet("shift register", pflag.ContinueOnError)
	flags.StringVar(&route, "route", string(models.RouteRegular), "route type: regular or mens_hostel")
	flags.IntVar(&seats, "seats", models.DefaultTotalSeats, "seat capacity")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: shift register <vehicle> [--route R] [--seats N]")
	}
	rt, ok := models.ParseRouteType(route)
	if !ok {
		return fmt.Errorf("unknown route %q", route)
	}
	shuttle, err := a.remote.RegisterShuttle(ctx, flags.Arg(0), rt, seats)
	if err != nil {
		return err
	}
	fmt.Printf("Registered shuttle %s on the %s route\n", shuttle.DisplayCode(), shuttle.RouteType.Label())
	return nil
}

func markersCmd(ctx context.Context, a *app, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	shuttles, err := tracker.ActiveShuttles(ctx, a.backend)
	if err != nil {
		return err
	}
	if len(shuttles) == 0 && a.cfg.DemoShuttles {
		shuttles = tracker.DemoShuttles()
	}
	body, err := geo.Markers(shuttles, geo.CampusRegion)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(body, '\n'))
	return err
}
