//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the borrowing API.
//
// Usage:
//
//	JWT_SECRET=<secret> go run ./scripts/concurrency_test.go <book_id> [borrowers]
//
// Or use the convenience environment variables:
//
//	JWT_SECRET=<secret> BOOK_ID=<uuid> BORROWERS=20 go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Reads the book's inventory via GET /books/{id}/.
//  2. Mints a token for N fresh borrowers and fires N concurrent POST /borrowings/ for that book.
//  3. Prints how many borrowed vs. were rejected as out of stock.
//  4. Re-reads the book and checks that inventory dropped by exactly the number of borrows.
//
// Prerequisites:
//   - Server must be running with the same JWT_SECRET and a reachable payment provider.
//   - The book must exist.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"librarylending/internal/auth"
	"librarylending/internal/models"
)

const (
	defaultServerAddr = "http://localhost:8080"
	defaultBorrowers  = 10
)

type borrowResult struct {
	UserID     uuid.UUID
	StatusCode int
	Body       map[string]interface{}
	Err        error
}

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must match the server's")
	}

	bookID := os.Getenv("BOOK_ID")
	borrowers := defaultBorrowers
	if v := os.Getenv("BORROWERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			log.Fatalf("BORROWERS must be a positive integer, got %q", v)
		}
		borrowers = n
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		bookID = args[0]
	}
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			log.Fatalf("borrowers must be a positive integer, got %q", args[1])
		}
		borrowers = n
	}
	if bookID == "" {
		log.Fatal("Usage: JWT_SECRET=<secret> go run ./scripts/concurrency_test.go <book_id> [borrowers]")
	}

	before, err := inventory(serverAddr, bookID)
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("=== Borrowing Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Book      : %s\n", bookID)
	fmt.Printf("Inventory : %d\n", before)
	fmt.Printf("Borrowers : %d\n\n", borrowers)

	expected := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	results := make([]borrowResult, borrowers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < borrowers; i++ {
		actor := models.Actor{UserID: uuid.New()}
		token, err := auth.Issue(secret, actor, time.Hour)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			res := attemptBorrow(serverAddr, token, bookID, expected)
			res.UserID = actor.UserID
			results[idx] = res
		}(i)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var borrowed, outOfStock, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%s err=%v\n", r.UserID, r.Err)
		case r.StatusCode == http.StatusCreated:
			borrowed++
			fmt.Printf("  [OK  ] user=%s borrowing=%v\n", r.UserID, r.Body["id"])
		case r.StatusCode == http.StatusBadRequest && r.Body["book"] != nil:
			outOfStock++
			fmt.Printf("  [NONE] user=%s %v\n", r.UserID, r.Body["book"])
		default:
			failures++
			fmt.Printf("  [FAIL] user=%s status=%d body=%v\n", r.UserID, r.StatusCode, r.Body)
		}
	}

	after, err := inventory(serverAddr, bookID)
	if err != nil {
		log.Fatalf("re-read book: %v", err)
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Borrowed     : %d\n", borrowed)
	fmt.Printf("Out of stock : %d\n", outOfStock)
	fmt.Printf("Failures     : %d\n", failures)
	fmt.Printf("Inventory    : %d -> %d\n\n", before, after)

	fmt.Println("--- Invariant Check ---")
	ok := true
	if after < 0 {
		fmt.Println("[FAIL] inventory went negative")
		ok = false
	}
	if before-after != borrowed {
		fmt.Printf("[FAIL] inventory dropped by %d but %d borrows succeeded\n", before-after, borrowed)
		ok = false
	}
	if borrowed > before {
		fmt.Printf("[FAIL] %d borrows succeeded with only %d copies on the shelf\n", borrowed, before)
		ok = false
	}
	if ok {
		fmt.Println("[PASS] inventory matches the number of successful borrows")
	}
	if !ok || failures > 0 {
		os.Exit(1)
	}
}

func attemptBorrow(serverAddr, token, bookID, expected string) borrowResult {
	payload, _ := json.Marshal(map[string]string{"book": bookID, "expected_return_date": expected})
	req, err := http.NewRequest(http.MethodPost, serverAddr+"/borrowings/", bytes.NewReader(payload))
	if err != nil {
		return borrowResult{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return borrowResult{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return borrowResult{StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	return borrowResult{StatusCode: resp.StatusCode, Body: parsed}
}

func inventory(serverAddr, bookID string) (int, error) {
	resp, err := client.Get(serverAddr + "/books/" + bookID + "/")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET book: status %d", resp.StatusCode)
	}
	var book struct {
		Inventory int `json:"inventory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return 0, err
	}
	return book.Inventory, nil
}
