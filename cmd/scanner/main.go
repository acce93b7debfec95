package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"campusqr/internal/config"
	"campusqr/internal/qrclient"
	"campusqr/internal/scanner"
)

// scanner decodes a QR payload from image frames, verifies it with the
// server, and marks attendance only after explicit confirmation.
func main() {
	var (
		tokenFlag = flag.String("token", "", "bearer token (defaults to CAMPUSQR_TOKEN)")
		userID    = flag.String("user", "", "staff id to exchange for a token when none is given")
		name      = flag.String("name", "", "staff display name for the token exchange")
		role      = flag.String("role", "lecturer", "role for the token exchange")
		purpose   = flag.String("purpose", "", "optional purpose recorded with the scan")
		location  = flag.String("location", "", "optional location recorded with the scan")
		yes       = flag.Bool("yes", false, "confirm attendance without prompting")
	)
	flag.Parse()

	frames := flag.Args()
	if len(frames) == 0 {
		fmt.Fprintln(os.Stderr, "usage: scanner [flags] frame.png [frame2.png ...]")
		os.Exit(2)
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("CAMPUSQR_TOKEN")
	}
	if token == "" && *userID != "" {
		exchanged, err := qrclient.Exchange(ctx, cfg.APIBaseURL, *userID, *name, *role)
		if err != nil {
			log.Fatalf("token exchange failed: %v", err)
		}
		token = exchanged
	}

	client := qrclient.New(cfg.APIBaseURL, qrclient.Static(token))
	session := scanner.NewSession(client, scanner.NewFileSource(frames...))
	defer session.Close()

	if err := session.StartCapture(ctx); err != nil {
		switch {
		case errors.Is(err, scanner.ErrPermissionDenied):
			log.Fatal("camera access was denied; grant permission and try again")
		case errors.Is(err, scanner.ErrNoDevice):
			log.Fatal("no camera found; connect one and try again")
		case errors.Is(err, scanner.ErrCaptureEnded):
			log.Fatal("no QR code found in the provided frames")
		default:
			log.Fatalf("scan failed: %v", err)
		}
	}

	student := session.Identity()
	if student == nil {
		log.Fatalf("verification failed: %v", session.Err())
	}

	fmt.Println("verified:")
	fmt.Printf("  %-12s %s\n", "student id", student.StudentID)
	fmt.Printf("  %-12s %s\n", "name", student.Name)
	fmt.Printf("  %-12s %s\n", "department", student.Department)
	fmt.Printf("  %-12s %s\n", "year", student.Year)
	fmt.Printf("  %-12s %s\n", "university", student.UniversityName)

	if !*yes && !promptConfirm(student.Name) {
		session.ScanAnother()
		fmt.Println("attendance not marked")
		return
	}

	res, err := session.ConfirmAttendance(ctx, *purpose, *location)
	if err != nil {
		log.Fatalf("could not mark attendance: %v", err)
	}
	fmt.Printf("attendance marked for %s at %s by %s (%s)\n",
		res.Student.Name, res.ScannedAt.Local().Format("15:04:05"), res.ScannedBy.Name, res.ScannedBy.UserType)
}

func promptConfirm(name string) bool {
	fmt.Printf("mark attendance for %s? [y/N] ", name)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
