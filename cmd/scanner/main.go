package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"eventpass/cmd/buildCFG"
	"eventpass/internal/scanner"
	"eventpass/internal/ticket"
)

// Door station: polls a camera, checks attendees in and prints the result.
// Type "r" and Enter to scan the same ticket again or resume after a camera
// error, "q" to quit.
func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "EVENTPASS"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	sc, err := buildCFG.BuildScannerConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scanner config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var session *scanner.Session
	if sc.AdminUsername != "" {
		loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		session, err = scanner.Login(loginCtx, sc.APIBaseURL, nil, sc.AdminUsername, sc.AdminPassword)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("operator login failed")
		}
		log.Info().Time("expires_at", session.ExpiresAt).Msg("operator logged in")
	}

	source := scanner.NewSnapshotSource(sc.SnapshotURL, sc.Interval, nil)
	if sc.CameraUsername != "" {
		source.WithBasicAuth(sc.CameraUsername, sc.CameraPassword)
	}
	client := scanner.NewClient(sc.APIBaseURL, nil, session)

	loop := scanner.NewLoop(source, ticket.NewQRDecoder(), client, printOutcome, &log)

	runErr := make(chan error, 1)
	start := func() {
		go func() { runErr <- loop.Run(ctx) }()
	}
	start()
	running := true

	lines := make(chan string)
	go func() {
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			lines <- strings.TrimSpace(in.Text())
		}
		close(lines)
	}()

	fmt.Println("Scanning. r = rescan, q = quit")
	for {
		select {
		case <-ctx.Done():
			shutdown(loop)
			return

		case err := <-runErr:
			running = false
			switch {
			case err == nil:
				shutdown(loop)
				return
			case errors.Is(err, scanner.ErrPermissionDenied):
				fmt.Println("Camera access denied. Check the camera credentials, then press r.")
			case errors.Is(err, scanner.ErrUnreadableFrame):
				fmt.Println("Camera frame could not be read. Press r to retry.")
			default:
				fmt.Printf("Camera error: %v. Press r to retry.\n", err)
			}

		case line, ok := <-lines:
			if !ok || line == "q" {
				shutdown(loop)
				return
			}
			if line == "r" {
				loop.Restart()
				if !running {
					start()
					running = true
				}
			}
		}
	}
}

func shutdown(loop *scanner.Loop) {
	loop.Stop()
	loop.Wait()
}

func printOutcome(o scanner.Outcome) {
	switch {
	case o.Err == nil:
		a := o.Attendee
		fmt.Printf("OK  %s <%s>  %s, %s, %s\n", a.Name, a.Email, a.EventName, a.EventVenue, a.EventDate)
	case errors.Is(o.Err, scanner.ErrAlreadyCheckedIn):
		fmt.Println("ALREADY SCANNED  this ticket was used before")
	case errors.Is(o.Err, scanner.ErrInvalidToken):
		fmt.Println("INVALID  unknown ticket")
	case errors.Is(o.Err, scanner.ErrUnauthorized):
		fmt.Println("NOT AUTHORIZED  operator session rejected")
	default:
		fmt.Printf("ERROR  %v\n", o.Err)
	}
}
