package server

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"
)

// readEvent scans the stream until an event of the wanted type arrives and returns its data line.
func readEvent(testContext *testing.T, response *http.Response, wanted string) (string, string) {
	testContext.Helper()

	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult, 1)
	done := make(chan struct{})
	defer close(done)
	reader := bufio.NewReader(response.Body)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			select {
			case lines <- readResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	currentEventType := ""
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			testContext.Fatal("timed out waiting for change event")
		case result := <-lines:
			if result.err != nil {
				testContext.Fatalf("failed to read stream: %v", result.err)
			}
			line := strings.TrimSpace(result.line)
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if strings.HasPrefix(line, "data:") && currentEventType == wanted {
				return currentEventType, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}
}
