package main

import (
	"discuss/internal/models"
	"discuss/internal/storage"
	"errors"
	"fmt"
	"os"
	"time"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: history <db-file>")
		os.Exit(1)
	}

	db, err := storage.NewBboltStorage(os.Args[1])
	if err != nil {
		fmt.Printf("Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	w, err := db.LoadWindow()
	if errors.Is(err, models.ErrNotFound) {
		fmt.Println("No saved messages")
		return
	}
	if err != nil {
		fmt.Printf("Error reading history: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d of %d messages, saved %s\n", len(w.Messages), w.Total, w.SavedAt.Format(time.RFC3339))
	for _, m := range w.Messages {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.User.DisplayName(), m.Content)
	}

	d, err := db.LoadDraft()
	if err == nil && d.Text != "" {
		fmt.Printf("Draft: %s\n", d.Text)
	}
}
