package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"datachat/internal/models"
)

type echoAsker struct{}

func (echoAsker) Ask(_ context.Context, sessionID, question string) (*models.Answer, error) {
	return models.TextAnswer(fmt.Sprintf("%s: %s", sessionID, question)), nil
}

type trackingAsker struct {
	mu      sync.Mutex
	active  map[string]int
	overlap atomic.Bool
	order   []string
}

func newTrackingAsker() *trackingAsker {
	return &trackingAsker{active: make(map[string]int)}
}

func (a *trackingAsker) Ask(_ context.Context, sessionID, question string) (*models.Answer, error) {
	a.mu.Lock()
	a.active[sessionID]++
	if a.active[sessionID] > 1 {
		a.overlap.Store(true)
	}
	a.order = append(a.order, question)
	a.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	a.mu.Lock()
	a.active[sessionID]--
	a.mu.Unlock()
	return models.TextAnswer("ok"), nil
}

func TestManagerAnswersQuestions(t *testing.T) {
	m, err := NewManager(echoAsker{}, Options{MinWorkers: 1, MaxWorkers: 2})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	answer, err := m.Ask(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Text != "s1: hello" {
		t.Fatalf("answer = %q", answer.Text)
	}
}

func TestManagerSerializesSameSession(t *testing.T) {
	asker := newTrackingAsker()
	m, err := NewManager(asker, Options{MinWorkers: 4, MaxWorkers: 4})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Ask(context.Background(), "s1", fmt.Sprintf("q%d", i)); err != nil {
				t.Errorf("ask q%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if asker.overlap.Load() {
		t.Fatalf("two questions for the same session ran at once")
	}
	if len(asker.order) != 8 {
		t.Fatalf("expected 8 questions handled, got %d", len(asker.order))
	}
}

type rendezvousAsker struct {
	arrived chan string
	release chan struct{}
}

func (a *rendezvousAsker) Ask(ctx context.Context, sessionID, _ string) (*models.Answer, error) {
	a.arrived <- sessionID
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return models.TextAnswer("ok"), nil
}

func TestManagerRunsSessionsConcurrently(t *testing.T) {
	asker := &rendezvousAsker{
		arrived: make(chan string, 2),
		release: make(chan struct{}),
	}
	m, err := NewManager(asker, Options{MinWorkers: 2, MaxWorkers: 2})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	var wg sync.WaitGroup
	for _, session := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			if _, err := m.Ask(context.Background(), session, "q"); err != nil {
				t.Errorf("ask %s: %v", session, err)
			}
		}(session)
	}

	// both sessions must be in flight before either is released
	deadline := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-asker.arrived:
		case <-deadline:
			t.Fatalf("sessions did not run concurrently")
		}
	}
	close(asker.release)
	wg.Wait()
}

func TestManagerCancelKeepsSessionSerial(t *testing.T) {
	asker := &rendezvousAsker{
		arrived: make(chan string, 2),
		release: make(chan struct{}),
	}
	m, err := NewManager(asker, Options{MinWorkers: 2, MaxWorkers: 2})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	done1 := make(chan error, 1)
	go func() {
		_, err := m.Ask(context.Background(), "s1", "first")
		done1 <- err
	}()
	select {
	case <-asker.arrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("first question never dispatched")
	}

	// ending the session must not let a follow-up question overtake the
	// still-running one
	m.CancelSession("s1")

	done2 := make(chan error, 1)
	go func() {
		_, err := m.Ask(context.Background(), "s1", "second")
		done2 <- err
	}()

	select {
	case <-asker.arrived:
		t.Fatalf("second question ran while the first was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	asker.release <- struct{}{}
	if err := <-done1; err != nil {
		t.Fatalf("first ask: %v", err)
	}

	select {
	case <-asker.arrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("second question never dispatched after the first finished")
	}
	asker.release <- struct{}{}
	if err := <-done2; err != nil {
		t.Fatalf("second ask: %v", err)
	}
}

type blockingAsker struct{}

func (blockingAsker) Ask(ctx context.Context, _, _ string) (*models.Answer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestManagerAskTimeout(t *testing.T) {
	m, err := NewManager(blockingAsker{}, Options{MinWorkers: 1, MaxWorkers: 1, AskTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = m.Ask(context.Background(), "s1", "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type failingAsker struct{}

var errAskFailed = errors.New("model unavailable")

func (failingAsker) Ask(context.Context, string, string) (*models.Answer, error) {
	return nil, errAskFailed
}

func TestManagerPropagatesErrors(t *testing.T) {
	m, err := NewManager(failingAsker{}, Options{MinWorkers: 1, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := m.Ask(context.Background(), "s1", "q"); !errors.Is(err, errAskFailed) {
		t.Fatalf("expected errAskFailed, got %v", err)
	}
}
