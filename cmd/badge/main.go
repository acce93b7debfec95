package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"campusqr/internal/badge"
	"campusqr/internal/config"
	"campusqr/internal/qrclient"
)

// badge displays the signed-in identity's QR credential in the terminal and
// keeps a coarse countdown running until interrupted.
func main() {
	var (
		tokenFlag = flag.String("token", "", "bearer token (defaults to CAMPUSQR_TOKEN)")
		userID    = flag.String("user", "", "user id to exchange for a token when none is given")
		role      = flag.String("role", "student", "role for the token exchange")
		pngPath   = flag.String("png", "", "also write the QR code to this PNG file")
	)
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("CAMPUSQR_TOKEN")
	}
	if token == "" && *userID != "" {
		exchanged, err := qrclient.Exchange(ctx, cfg.APIBaseURL, *userID, "", *role)
		if err != nil {
			log.Fatalf("token exchange failed: %v", err)
		}
		token = exchanged
	}

	client := qrclient.New(cfg.APIBaseURL, qrclient.Static(token))
	session := badge.NewSession(client, badge.WithLocalWindow(cfg.QRTokenTTL))
	defer session.Close()

	if err := session.RequestPayload(ctx); err != nil {
		log.Fatalf("could not obtain QR code: %v", err)
	}

	holder := session.Holder()
	fmt.Printf("%s (%s, %s)\n\n", holder.Name, holder.ID, holder.UserType)

	art, err := session.Terminal()
	if err != nil {
		log.Fatalf("render failed: %v", err)
	}
	fmt.Println(art)

	if *pngPath != "" {
		png, err := session.PNG(512)
		if err != nil {
			log.Fatalf("png encode failed: %v", err)
		}
		if err := os.WriteFile(*pngPath, png, 0o644); err != nil {
			log.Fatalf("png write failed: %v", err)
		}
		fmt.Printf("wrote %s\n", *pngPath)
	}

	fmt.Printf("valid for: %s\n", session.CountdownLabel())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Countdown is re-rendered once per minute. Expiry is display-only; a new
	// code is requested only on user action (restart the command).
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Printf("valid for: %s\n", session.CountdownLabel())
			if session.State() == badge.StateExpired {
				fmt.Println("QR code expired, run again to request a new one")
				return
			}
		case <-sigCh:
			return
		}
	}
}
