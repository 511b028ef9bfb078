// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-osal/pkg/console"
	"github.com/u-root/u-osal/pkg/osal"
	"github.com/u-root/u-osal/pkg/osal/rtos"
)

func startOS(t *testing.T, in string, out *bytes.Buffer) *osal.OS {
	t.Helper()
	o, err := osal.New(rtos.New(nil, nil), nil,
		osal.WithConsole(console.New(strings.NewReader(in), out)),
		osal.WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Start(false, func(ctx context.Context, _ any) { <-ctx.Done() }, mainStackBytes, 5); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { o.Shutdown() })
	return o
}

func TestNewBackend(t *testing.T) {
	for _, name := range []string{"rtos", "posix"} {
		if _, err := newBackend(name, nil); err != nil {
			t.Errorf("newBackend(%q): %v", name, err)
		}
	}
	if _, err := newBackend("vxworks", nil); err == nil {
		t.Errorf("Expected unknown backend to fail")
	}
}

func TestDebugMenu(t *testing.T) {
	var out bytes.Buffer
	o := startOS(t, "7\rx\r1\r", &out)
	if _, err := o.CreateMutex("m"); err != nil {
		t.Fatal(err)
	}
	debugMenu(context.Background(), o)
	s := out.String()
	for _, want := range []string{"0:print_all_stats", "2:print_stats_custom", `Unknown command "7"`, `Unknown command "x"`} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %q in menu output:\n%s", want, s)
		}
	}
	if n := len(o.Registry().Entries(osal.KindMutex)); n != 0 {
		t.Errorf("clear_all_stats left %d mutex entries", n)
	}
}

func TestPostWithRetry(t *testing.T) {
	var out bytes.Buffer
	o := startOS(t, "", &out)
	mb, err := o.CreateMailbox(1, 1, "full")
	if err != nil {
		t.Fatal(err)
	}
	if err := mb.Post([]byte{1}, osal.NoWait); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		buf := make([]byte, 1)
		mb.Pend(buf, osal.NoWait)
	}()
	if err := postWithRetry(context.Background(), mb, []byte{2}); err != nil {
		t.Errorf("Expected the retry to land once room was made, got %v", err)
	}

	var dead osal.Mailbox
	began := time.Now()
	if err := postWithRetry(context.Background(), dead, []byte{3}); osal.CodeOf(err) != osal.InvalidHandle {
		t.Errorf("Expected InvalidHandle, got %v", err)
	}
	if d := time.Since(began); d > time.Second {
		t.Errorf("Permanent failure retried for %v", d)
	}
}
