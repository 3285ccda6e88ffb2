package names

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/eve-market-prices/pkg/client"
)

// fakeESI serves type names from a map and records every lookup.
type fakeESI struct {
	mu      sync.Mutex
	names   map[int64]string
	calls   []int64
	gate    chan struct{} // when set, each lookup blocks until it can receive
	started chan int64    // when set, receives each id as its lookup begins
}

func newFakeESI(names map[int64]string) *fakeESI {
	return &fakeESI{names: names}
}

func (f *fakeESI) GetJSON(ctx context.Context, endpoint string, v any) error {
	id, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(endpoint, "/universe/types/"), "/"), 10, 64)
	if err != nil {
		return fmt.Errorf("unexpected endpoint %q", endpoint)
	}

	f.mu.Lock()
	f.calls = append(f.calls, id)
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	name, ok := f.names[id]
	f.mu.Unlock()
	if !ok {
		return &client.ESIError{StatusCode: 404, ErrorClass: client.ErrorClassClient, Message: "404 Not Found"}
	}

	body, _ := json.Marshal(typeInfo{TypeID: id, Name: name})
	return json.Unmarshal(body, v)
}

func (f *fakeESI) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func (f *fakeESI) CallCount(id int64) int {
	n := 0
	for _, c := range f.Calls() {
		if c == id {
			n++
		}
	}
	return n
}
