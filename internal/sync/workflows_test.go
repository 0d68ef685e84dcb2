package sync

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/medhubvn/stocksheet/internal/models"
)

func TestRelocate_PartialQuantity(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{
		testHeader(),
		testRow("Acme", "SKU-1", "Paracetamol", "8"),
	})
	adapter.setTab("b", [][]string{testHeader()})
	hub := &fakeHub{}
	svc := newTestService(adapter, hub, testSources("a", "b"), testConfig())
	ctx := context.Background()

	svc.RunCycle(ctx)
	hub.reset()
	journalBefore := len(adapter.journal())

	err := svc.Relocate(ctx, "alice", RelocateRequest{
		RowID:      "a_2",
		DestSource: "b",
		Quantity:   5,
	})
	if err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}

	// Destination got a new row with the moved quantity.
	if len(adapter.tabs["b"]) != 2 {
		t.Fatalf("Destination should have one data row, has %d rows", len(adapter.tabs["b"]))
	}
	destRow := adapter.tabs["b"][1]
	if destRow[4] != "5" || destRow[2] != "Paracetamol" {
		t.Errorf("Destination row wrong: %v", destRow)
	}

	// Source keeps the residual.
	if adapter.tabs["a"][1][4] != "3" {
		t.Errorf("Source residual should be 3, got %q", adapter.tabs["a"][1][4])
	}

	// The destination append lands before the source adjustment, so a crash
	// in between over-counts instead of losing stock.
	ops := adapter.journal()[journalBefore:]
	appendIdx, writeIdx := -1, -1
	for i, op := range ops {
		switch op {
		case "append:b":
			appendIdx = i
		case "write:a":
			writeIdx = i
		}
	}
	if appendIdx == -1 || writeIdx == -1 || appendIdx > writeIdx {
		t.Errorf("Destination append must precede source adjustment, ops: %v", ops)
	}

	// Exactly one RELOCATE entry covers both halves of the move.
	entries := svc.ChangeLog().Recent(10)
	if len(entries) != 1 || entries[0].Action != models.ActionRelocate {
		t.Fatalf("Expected exactly one RELOCATE entry, got %+v", entries)
	}

	want := []string{"inventory_update:RELOCATE"}
	if got := hub.typeSequence(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected a single RELOCATE broadcast, got %v", got)
	}
}

func TestRelocate_FullQuantityRemovesSourceRow(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{
		testHeader(),
		testRow("Acme", "SKU-1", "Paracetamol", "8"),
	})
	adapter.setTab("b", [][]string{testHeader()})
	svc := newTestService(adapter, &fakeHub{}, testSources("a", "b"), testConfig())
	ctx := context.Background()
	svc.RunCycle(ctx)

	err := svc.Relocate(ctx, "alice", RelocateRequest{RowID: "a_2", DestSource: "b", Quantity: 8})
	if err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}

	if len(adapter.tabs["a"]) != 1 {
		t.Errorf("Fully moved row should be deleted, source has %d rows", len(adapter.tabs["a"]))
	}
	if adapter.tabs["b"][1][4] != "8" {
		t.Errorf("Destination should hold the full quantity, got %q", adapter.tabs["b"][1][4])
	}
}

func TestRelocate_Validation(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{testHeader(), testRow("Acme", "SKU-1", "Paracetamol", "8")})
	adapter.setTab("b", [][]string{testHeader()})
	svc := newTestService(adapter, &fakeHub{}, testSources("a", "b"), testConfig())
	ctx := context.Background()
	svc.RunCycle(ctx)

	cases := []struct {
		name string
		req  RelocateRequest
	}{
		{"zero quantity", RelocateRequest{RowID: "a_2", DestSource: "b", Quantity: 0}},
		{"same source", RelocateRequest{RowID: "a_2", DestSource: "a", Quantity: 1}},
		{"unknown destination", RelocateRequest{RowID: "a_2", DestSource: "c", Quantity: 1}},
		{"more than available", RelocateRequest{RowID: "a_2", DestSource: "b", Quantity: 9}},
		{"bad row id", RelocateRequest{RowID: "a_zero", DestSource: "b", Quantity: 1}},
	}
	for _, tc := range cases {
		if err := svc.Relocate(ctx, "alice", tc.req); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestRelocate_DriftedSourceRow(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{
		testHeader(),
		testRow("Acme", "SKU-1", "Paracetamol", "8"),
		testRow("Acme", "SKU-2", "Ibuprofen", "6"),
	})
	adapter.setTab("b", [][]string{testHeader()})
	svc := newTestService(adapter, &fakeHub{}, testSources("a", "b"), testConfig())
	ctx := context.Background()
	svc.RunCycle(ctx)

	// Row 2 vanishes out of band; the Ibuprofen row slides from 3 to 2.
	adapter.mu.Lock()
	adapter.tabs["a"] = append(adapter.tabs["a"][:1], adapter.tabs["a"][2:]...)
	adapter.mu.Unlock()

	err := svc.Relocate(ctx, "alice", RelocateRequest{
		RowID:      "a_3",
		DestSource: "b",
		Quantity:   2,
		Keys:       map[string]string{models.FieldProductCode: "SKU-2"},
	})
	if err != nil {
		t.Fatalf("Relocate with drifted row failed: %v", err)
	}

	if adapter.tabs["a"][1][4] != "4" {
		t.Errorf("Shifted source row should hold residual 4, got %q", adapter.tabs["a"][1][4])
	}
	if adapter.tabs["b"][1][2] != "Ibuprofen" {
		t.Errorf("Wrong product relocated: %v", adapter.tabs["b"][1])
	}
}

func TestRelocate_SourceAdjustFailureIsOverCounted(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{
		testHeader(),
		testRow("Acme", "SKU-1", "Paracetamol", "8"),
	})
	adapter.setTab("b", [][]string{testHeader()})
	svc := newTestService(adapter, &fakeHub{}, testSources("a", "b"), testConfig())
	ctx := context.Background()
	svc.RunCycle(ctx)

	// Reads keep working; only the source write-back fails.
	adapter.failWrites("a", true)

	err := svc.Relocate(ctx, "alice", RelocateRequest{RowID: "a_2", DestSource: "b", Quantity: 5})
	if err == nil {
		t.Fatal("Relocate must surface the source adjustment failure")
	}
	if !strings.Contains(err.Error(), "partially applied") {
		t.Errorf("Error should flag the half-applied move, got %v", err)
	}

	// Over-counted, never lost: destination holds 5 while the source still
	// shows the original 8.
	if adapter.tabs["b"][1][4] != "5" {
		t.Errorf("Destination should keep the appended quantity, got %q", adapter.tabs["b"][1][4])
	}
	if adapter.tabs["a"][1][4] != "8" {
		t.Errorf("Source must be untouched after a failed adjust, got %q", adapter.tabs["a"][1][4])
	}

	// The partial move is audited for manual repair.
	entries := svc.ChangeLog().Recent(10)
	if len(entries) != 1 || entries[0].Action != models.ActionRelocate {
		t.Fatalf("Expected a RELOCATE audit entry, got %+v", entries)
	}
}

func TestBulkSendOut(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{
		testHeader(),
		testRow("Acme", "SKU-1", "Paracetamol", "8"),
		testRow("Acme", "SKU-2", "Ibuprofen", "6"),
	})
	hub := &fakeHub{}
	svc := newTestService(adapter, hub, testSources("a"), testConfig())
	ctx := context.Background()
	svc.RunCycle(ctx)
	hub.reset()

	// First item empties its row, which shifts the second item's row up by
	// one; the per-item fresh locate must still find it through its keys.
	err := svc.BulkSendOut(ctx, "alice", BulkSendOutRequest{
		Items: []SendOutItem{
			{RowID: "a_2", Quantity: 8, Keys: map[string]string{models.FieldProductCode: "SKU-1"}},
			{RowID: "a_3", Quantity: 2, Keys: map[string]string{models.FieldProductCode: "SKU-2"}},
		},
		Notes: "order #1042",
	})
	if err != nil {
		t.Fatalf("BulkSendOut failed: %v", err)
	}

	if len(adapter.tabs["a"]) != 2 {
		t.Fatalf("Emptied row should be deleted, %d rows remain", len(adapter.tabs["a"]))
	}
	row := adapter.tabs["a"][1]
	if row[1] != "SKU-2" || row[4] != "4" {
		t.Errorf("Surviving row wrong: %v", row)
	}

	// One SEND_OUT entry per row, one broadcast for the whole batch.
	entries := svc.ChangeLog().Recent(10)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 SEND_OUT entries, got %+v", entries)
	}
	for _, e := range entries {
		if e.Action != models.ActionSendOut {
			t.Errorf("Expected SEND_OUT, got %s", e.Action)
		}
	}

	want := []string{"inventory_update:BULK_SEND_OUT"}
	if got := hub.typeSequence(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected a single BULK_SEND_OUT broadcast, got %v", got)
	}
}

func TestBulkSendOut_Validation(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.setTab("a", [][]string{testHeader(), testRow("Acme", "SKU-1", "Paracetamol", "8")})
	svc := newTestService(adapter, &fakeHub{}, testSources("a"), testConfig())
	ctx := context.Background()
	svc.RunCycle(ctx)

	if err := svc.BulkSendOut(ctx, "alice", BulkSendOutRequest{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Empty batch should fail validation, got %v", err)
	}

	err := svc.BulkSendOut(ctx, "alice", BulkSendOutRequest{
		Items: []SendOutItem{{RowID: "a_2", Quantity: 0}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Zero quantity should fail validation, got %v", err)
	}

	err = svc.BulkSendOut(ctx, "alice", BulkSendOutRequest{
		Items: []SendOutItem{{RowID: "a_2", Quantity: 20}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Over-count should fail validation, got %v", err)
	}
	if adapter.tabs["a"][1][4] != "8" {
		t.Errorf("Failed batch must not touch the sheet, got %q", adapter.tabs["a"][1][4])
	}
}
