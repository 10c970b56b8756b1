package utils

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestConvertToDateBucketsByDepotTimezone(t *testing.T) {
	// 20:00 UTC is already the next day in Asia/Yangon (UTC+6:30)
	in := time.Date(2026, 8, 10, 20, 0, 0, 0, time.UTC)
	got, err := ConvertToDate(in, "Asia/Yangon")
	if err != nil {
		t.Fatalf("ConvertToDate: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.August || got.Day() != 11 {
		t.Fatalf("date = %v, want 2026-08-11", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Fatalf("time component not truncated: %v", got)
	}
}

func TestConvertToDateRejectsBadTimezone(t *testing.T) {
	if _, err := ConvertToDate(time.Now(), "Not/AZone"); err == nil {
		t.Fatal("invalid timezone should error")
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.5 ")
	if err != nil || d.String() != "12.5" {
		t.Fatalf("ParseDecimal = %v, %v", d, err)
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Fatal("empty string should error")
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatal("non-numeric string should error")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got = %v, want %v", got, want)
		}
	}
}

func TestProductLockSerializesWithoutRedis(t *testing.T) {
	ctx := context.Background()

	var (
		inCritical int
		maxSeen    int
		mu         sync.Mutex
		wg         sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := ProductLock(ctx, 4242, "helper_test.go", "TestProductLockSerializesWithoutRedis")
			if err != nil {
				t.Errorf("ProductLock: %v", err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxSeen {
				maxSeen = inCritical
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("critical section overlap: max concurrent = %d", maxSeen)
	}
}

func TestProductLockDistinctProductsDoNotBlock(t *testing.T) {
	ctx := context.Background()

	releaseA, err := ProductLock(ctx, 1, "helper_test.go", "TestProductLockDistinctProductsDoNotBlock")
	if err != nil {
		t.Fatalf("lock product 1: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := ProductLock(ctx, 2, "helper_test.go", "TestProductLockDistinctProductsDoNotBlock")
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different product blocked")
	}
}
