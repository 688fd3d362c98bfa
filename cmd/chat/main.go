package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Rrens/kaif-chat/internal/app"
	"github.com/Rrens/kaif-chat/internal/config"
	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/logging"
	"github.com/Rrens/kaif-chat/internal/recorder"
	"github.com/Rrens/kaif-chat/internal/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

func main() {
	email := flag.String("email", os.Getenv("KAIF_EMAIL"), "account email")
	register := flag.Bool("register", false, "create the account before signing in")
	clipboardPath := flag.String("clipboard", "", "file that receives copied messages (default: print)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Logging.Level == "" || cfg.Logging.Level == "info" {
		// keep the prompt readable
		cfg.Logging.Level = "warn"
	}
	logCloser, err := logging.Setup(cfg.Logging, os.Getenv("ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	in := bufio.NewReader(os.Stdin)
	user, err := signIn(ctx, application, in, *email, *register)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sign-in failed: %v\n", err)
		os.Exit(1)
	}

	session := service.NewUserSession(user)
	defer session.Close()

	store := application.NewChatStore()
	store.SetUser(ctx, user)
	go store.Follow(ctx, session)

	capture := recorder.NewCommandCapture(cfg.Recorder)
	rec := recorder.New(capture, capture, recorder.Options{
		MimeType:  cfg.Recorder.MimeType,
		Extension: cfg.Recorder.Extension,
	})
	defer rec.Close()

	c := &client{
		store:     store,
		session:   session,
		recorder:  rec,
		clipboard: newClipboard(*clipboardPath, os.Stdout),
		out:       os.Stdout,
	}

	fmt.Printf("Signed in as %s. Type /help for commands.\n", user.Email)
	c.printConversations()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := c.handle(ctx, line); quit {
				return
			}
		}
	}
}

func signIn(ctx context.Context, a *app.App, in *bufio.Reader, email string, register bool) (*domain.User, error) {
	if email == "" {
		fmt.Print("Email: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	password, err := readPassword(in)
	if err != nil {
		return nil, err
	}

	if register {
		if _, err := a.Auth.Register(ctx, domain.UserCreate{Email: email, Password: password}); err != nil && !errors.Is(err, service.ErrEmailTaken) {
			return nil, err
		}
	}

	user, _, err := a.Auth.Login(ctx, domain.UserLogin{Email: email, Password: password})
	return user, err
}

func readPassword(in *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
