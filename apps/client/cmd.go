package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// listener receives push notifications until ctx is done.
type listener interface {
	RegisterForPushNotifications(ctx context.Context) (string, error)
	Token() string
	Listen(ctx context.Context) error
	AddNotificationReceivedListener(fn func(session.Notification)) session.Subscription
}

// campus reads the learning tables as the signed-in user.
type campus interface {
	Courses(ctx context.Context) ([]learning.Course, error)
	Enroll(ctx context.Context, courseID string) (learning.Enrollment, error)
	Events(ctx context.Context) ([]learning.Event, error)
	Announcements(ctx context.Context) ([]learning.Announcement, error)
}

type commandLine struct {
	m        *session.Manager
	notifier listener
	campus   campus
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  status - show the current session")
	_, _ = fmt.Fprintln(cli.out, "  signin -email EMAIL - sign in; the password is prompted next")
	_, _ = fmt.Fprintln(cli.out, "  signup -email EMAIL [-name NAME] [-role admin|teacher|student] - create an account")
	_, _ = fmt.Fprintln(cli.out, "  signout - sign out and clear the local session")
	_, _ = fmt.Fprintln(cli.out, "  role admin|teacher|student - pick the role used for the next sign-in")
	_, _ = fmt.Fprintln(cli.out, "  theme dark|light - switch the color scheme")
	_, _ = fmt.Fprintln(cli.out, "  open ROUTE - check whether the session may open ROUTE")
	_, _ = fmt.Fprintln(cli.out, "  forgot -email EMAIL - request a password reset email")
	_, _ = fmt.Fprintln(cli.out, "  listen - print push notifications until interrupted")
	_, _ = fmt.Fprintln(cli.out, "  courses - list the courses you can see")
	_, _ = fmt.Fprintln(cli.out, "  enroll COURSE_ID - join an approved course")
	_, _ = fmt.Fprintln(cli.out, "  events - list upcoming events")
	_, _ = fmt.Fprintln(cli.out, "  announcements - list announcements")
}

func (cli *commandLine) readPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	signInCmd := flag.NewFlagSet("signin", flag.ContinueOnError)
	signInCmd.SetOutput(cli.out)
	signInEmail := signInCmd.String("email", "", "The account email.")

	signUpCmd := flag.NewFlagSet("signup", flag.ContinueOnError)
	signUpCmd.SetOutput(cli.out)
	signUpEmail := signUpCmd.String("email", "", "The account email.")
	signUpName := signUpCmd.String("name", "", "Your display name.")
	signUpRole := signUpCmd.String("role", "", "One of admin, teacher or student.")

	forgotCmd := flag.NewFlagSet("forgot", flag.ContinueOnError)
	forgotCmd.SetOutput(cli.out)
	forgotEmail := forgotCmd.String("email", "", "The account email.")

	switch args[1] {
	case "status":
		cli.printStatus()
		return nil
	case "signin":
		if err := signInCmd.Parse(args[2:]); err != nil || *signInEmail == "" {
			signInCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if _, err = cli.m.SignIn(ctx, *signInEmail, pwd); err != nil {
			return err
		}
		cli.printStatus()
		return nil
	case "signup":
		if err := signUpCmd.Parse(args[2:]); err != nil || *signUpEmail == "" {
			signUpCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if _, err = cli.m.SignUp(ctx, *signUpEmail, pwd, *signUpName, user.Role(*signUpRole)); err != nil {
			return err
		}
		cli.printStatus()
		return nil
	case "signout":
		cli.m.SignOut(ctx)
		_, _ = fmt.Fprintln(cli.out, "Signed out.")
		return nil
	case "role":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		role, ok := user.ParseRole(args[2])
		if !ok {
			return session.ErrInvalidRole
		}
		return cli.m.SelectRole(ctx, role)
	case "theme":
		if len(args) < 3 || (args[2] != "dark" && args[2] != "light") {
			cli.printUsage()
			return errHelp
		}
		cli.m.ToggleTheme(ctx, args[2] == "dark")
		return nil
	case "open":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.m.CanAccessRoute(args[2]) {
			_, _ = fmt.Fprintf(cli.out, "%s: allowed\n", args[2])
			return nil
		}
		_, _ = fmt.Fprintf(cli.out, "%s: denied, go to %s\n", args[2], cli.m.Redirect())
		return nil
	case "forgot":
		if err := forgotCmd.Parse(args[2:]); err != nil || *forgotEmail == "" {
			forgotCmd.Usage()
			return errHelp
		}
		if err := cli.m.RequestPasswordReset(ctx, *forgotEmail); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cli.out, "Check your inbox for the reset link.")
		return nil
	case "listen":
		if cli.notifier == nil {
			return session.ErrNotSupported
		}
		// the session registers the device in the background
		cli.m.Wait()
		if cli.notifier.Token() == "" {
			if _, err := cli.notifier.RegisterForPushNotifications(ctx); err != nil {
				return err
			}
		}
		sub := cli.notifier.AddNotificationReceivedListener(func(n session.Notification) {
			_, _ = fmt.Fprintf(cli.out, "[%s] %s: %s\n", n.SentAt.Format("15:04"), n.Title, n.Body)
		})
		defer sub.Unsubscribe()
		if err := cli.notifier.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case "courses", "enroll", "events", "announcements":
		if cli.campus == nil {
			return session.ErrNotSupported
		}
		return cli.runCampus(ctx, args)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runCampus(ctx context.Context, args []string) error {
	switch args[1] {
	case "courses":
		courses, err := cli.campus.Courses(ctx)
		if err != nil {
			return err
		}
		if len(courses) == 0 {
			_, _ = fmt.Fprintln(cli.out, "No courses.")
		}
		for _, c := range courses {
			_, _ = fmt.Fprintf(cli.out, "%s  %s [%s, %s]\n", c.ID, c.Title, c.Difficulty, c.Status)
		}
	case "enroll":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		enr, err := cli.campus.Enroll(ctx, args[2])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cli.out, "Enrolled in %s.\n", enr.Course.Title)
	case "events":
		events, err := cli.campus.Events(ctx)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			_, _ = fmt.Fprintln(cli.out, "No events.")
		}
		for _, e := range events {
			_, _ = fmt.Fprintf(cli.out, "%s %s  %s @ %s\n", e.Date, e.Time, e.Title, e.Location)
		}
	case "announcements":
		anns, err := cli.campus.Announcements(ctx)
		if err != nil {
			return err
		}
		if len(anns) == 0 {
			_, _ = fmt.Fprintln(cli.out, "No announcements.")
		}
		for _, a := range anns {
			_, _ = fmt.Fprintf(cli.out, "[%s] %s: %s\n", a.Priority, a.Title, a.Content)
		}
	}
	return nil
}

func (cli *commandLine) printStatus() {
	sess, ok := cli.m.Session()
	if !ok {
		_, _ = fmt.Fprintln(cli.out, "Signed out.")
		return
	}

	role := "none"
	if sess.HasRole() {
		role = sess.Role.String()
	}
	theme := "light"
	if cli.m.DarkMode() {
		theme = "dark"
	}
	_, _ = fmt.Fprintf(cli.out, "Signed in as %s <%s> (%s session)\n", sess.Name, sess.Email, sess.Source)
	_, _ = fmt.Fprintf(cli.out, "Role: %s\nTheme: %s\nHome: %s\n", role, theme, session.DashboardRoute(sess.Role))
	if routes := session.AllowedRoutes(sess.Role); len(routes) > 0 {
		_, _ = fmt.Fprintf(cli.out, "Screens: %s\n", strings.Join(routes, ", "))
	}
}
