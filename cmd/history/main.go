package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"campusqr/internal/config"
	"campusqr/internal/history"
	"campusqr/internal/qrclient"
)

// history prints one page of attendance records, either the caller's own or,
// for staff, an arbitrary student's.
func main() {
	var (
		tokenFlag = flag.String("token", "", "bearer token (defaults to CAMPUSQR_TOKEN)")
		studentID = flag.String("student", "", "browse this student's history instead of your own (staff only)")
		page      = flag.Int("page", 1, "page to fetch")
		limit     = flag.Int("limit", 0, "records per page")
	)
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("CAMPUSQR_TOKEN")
	}

	pageSize := *limit
	if pageSize <= 0 {
		pageSize = cfg.DefaultPageSize
	}

	client := qrclient.New(cfg.APIBaseURL, qrclient.Static(token))
	viewer := history.NewViewer(client, pageSize)
	viewer.SetStudent(*studentID)

	if err := viewer.LoadPage(ctx, *page); err != nil {
		log.Fatalf("could not load history: %v", err)
	}

	if student := viewer.Student(); student != nil {
		fmt.Printf("history for %s (%s, %s %s)\n\n", student.Name, student.StudentID, student.Department, student.Year)
	}

	records := viewer.Records()
	if len(records) == 0 {
		fmt.Println("no attendance records")
		return
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  by %s (%s)", rec.ScannedAt.Local().Format("2006-01-02 15:04"), rec.ScannedBy, rec.ScannedByRole)
		if rec.Purpose != "" {
			line += "  purpose: " + rec.Purpose
		}
		if rec.Location != "" {
			line += "  at " + rec.Location
		}
		fmt.Println(line)
	}

	cursor := viewer.Cursor()
	fmt.Printf("\npage %d of %d (%d records)", cursor.CurrentPage, cursor.TotalPages, cursor.TotalRecords)
	if viewer.HasPrev() {
		fmt.Printf("  [prev: -page %d]", cursor.CurrentPage-1)
	}
	if viewer.HasNext() {
		fmt.Printf("  [next: -page %d]", cursor.CurrentPage+1)
	}
	fmt.Println()
}
