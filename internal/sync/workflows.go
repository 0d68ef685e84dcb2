package sync

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/medhubvn/stocksheet/internal/models"
	"github.com/medhubvn/stocksheet/internal/sheets"
)

// RelocateRequest moves quantity from one source's row to another source.
type RelocateRequest struct {
	RowID      string            `json:"rowId"`
	DestSource string            `json:"destSource"`
	Quantity   int               `json:"quantity"`
	Keys       map[string]string `json:"keys,omitempty"` // business keys for drift recovery
	Notes      string            `json:"notes,omitempty"`
}

// SendOutItem is one row of a bulk send-out.
type SendOutItem struct {
	RowID    string            `json:"rowId"`
	Quantity int               `json:"quantity"`
	Keys     map[string]string `json:"keys,omitempty"`
}

// BulkSendOutRequest ships quantity out of several rows at once.
type BulkSendOutRequest struct {
	Items []SendOutItem `json:"items"`
	Notes string        `json:"notes,omitempty"`
}

// Relocate moves req.Quantity from the row behind req.RowID to a new row on
// req.DestSource. The destination append happens FIRST: a failure between
// append and source adjustment leaves the inventory over-counted, which is
// visible and recoverable, where the reverse order could silently lose
// stock. Exactly one RELOCATE entry records both deltas.
func (s *Service) Relocate(ctx context.Context, user string, req RelocateRequest) error {
	sourceName, recordedRow, err := models.ParseRecordID(req.RowID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, ok := s.mapper.Schema(req.DestSource); !ok {
		return fmt.Errorf("%w: unknown destination source %q", ErrValidation, req.DestSource)
	}
	if req.DestSource == sourceName {
		return fmt.Errorf("%w: destination must differ from the row's source", ErrValidation)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	if !s.state.TryBeginMutation() {
		return ErrBusy
	}
	resync := false
	defer func() {
		s.state.EndMutation()
		if resync {
			s.TriggerSync()
		}
	}()

	row, fields, err := s.resolver.Locate(ctx, sourceName, recordedRow, req.Keys)
	if err != nil {
		return err
	}

	available := parseQuantity(fields[models.FieldQuantity])
	if req.Quantity > available {
		return fmt.Errorf("%w: requested %d but only %d available", ErrValidation, req.Quantity, available)
	}

	destFields := copyFields(fields)
	destFields[models.FieldQuantity] = strconv.Itoa(req.Quantity)
	destFields[models.FieldImportDate] = time.Now().Format("2006-01-02")
	if req.Notes != "" {
		destFields[models.FieldNotes] = req.Notes
	}

	destValues := padTo(s.mapper.RowValues(req.DestSource, destFields), len(models.FieldOrder))
	destValues = append(destValues, time.Now().Format(time.RFC3339), user, "1")
	destRow, err := s.adapter.AppendRows(ctx, req.DestSource, [][]string{destValues})
	if err != nil {
		return err
	}
	destID := models.RecordID(req.DestSource, destRow)
	// The destination tab changed; resync whether or not the source
	// adjustment below goes through.
	resync = true

	residual := available - req.Quantity
	if err := s.adjustSourceRow(ctx, user, sourceName, row, fields, residual); err != nil {
		// Destination already holds the moved quantity: over-counted, not
		// lost. Record the half-applied move so an operator can repair.
		s.changeLog.Append(NewEntry(user, models.ActionRelocate, req.RowID, nil, map[string]interface{}{
			"to":       destID,
			"quantity": req.Quantity,
			"partial":  true,
			"error":    err.Error(),
		}))
		return fmt.Errorf("relocation partially applied (destination written, source adjustment failed): %w", err)
	}

	s.changeLog.Append(NewEntry(user, models.ActionRelocate, req.RowID,
		[]models.FieldChange{{
			Field: models.FieldQuantity,
			Old:   strconv.Itoa(available),
			New:   strconv.Itoa(residual),
		}},
		map[string]interface{}{
			"to":          destID,
			"quantity":    req.Quantity,
			"residual":    residual,
			"notes":       req.Notes,
			"productName": fields[models.FieldProductName],
			"productCode": fields[models.FieldProductCode],
		}))

	log.Printf("🚚 Relocated %d of %d from %s to %s", req.Quantity, available, req.RowID, destID)
	s.hub.BroadcastJSON(models.NewInventoryUpdate(models.UpdateActionRelocate, map[string]interface{}{
		"from":     req.RowID,
		"to":       destID,
		"quantity": req.Quantity,
		"residual": residual,
	}))
	return nil
}

// BulkSendOut decrements or removes several rows in one operation, one
// SEND_OUT entry per row. Each item is located with a fresh read, so earlier
// deletions inside the batch cannot mislead later index lookups.
func (s *Service) BulkSendOut(ctx context.Context, user string, req BulkSendOutRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: no items to send out", ErrValidation)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for %s", ErrValidation, item.RowID)
		}
	}

	if !s.state.TryBeginMutation() {
		return ErrBusy
	}
	resync := false
	defer func() {
		s.state.EndMutation()
		if resync {
			s.TriggerSync()
		}
	}()

	shipped := make([]map[string]interface{}, 0, len(req.Items))
	for _, item := range req.Items {
		sourceName, recordedRow, err := models.ParseRecordID(item.RowID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		row, fields, err := s.resolver.Locate(ctx, sourceName, recordedRow, item.Keys)
		if err != nil {
			return fmt.Errorf("send-out of %s: %w", item.RowID, err)
		}

		available := parseQuantity(fields[models.FieldQuantity])
		if item.Quantity > available {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrValidation, item.RowID, available, item.Quantity)
		}

		residual := available - item.Quantity
		if err := s.adjustSourceRow(ctx, user, sourceName, row, fields, residual); err != nil {
			return fmt.Errorf("send-out of %s: %w", item.RowID, err)
		}
		resync = true

		s.changeLog.Append(NewEntry(user, models.ActionSendOut, item.RowID,
			[]models.FieldChange{{
				Field: models.FieldQuantity,
				Old:   strconv.Itoa(available),
				New:   strconv.Itoa(residual),
			}},
			map[string]interface{}{
				"quantity":    item.Quantity,
				"notes":       req.Notes,
				"productName": fields[models.FieldProductName],
			}))

		shipped = append(shipped, map[string]interface{}{
			"id":       item.RowID,
			"quantity": item.Quantity,
			"residual": residual,
		})
	}

	log.Printf("📤 Bulk send-out: %d row(s) by %s", len(shipped), user)
	s.hub.BroadcastJSON(models.NewInventoryUpdate(models.UpdateActionBulkSendOut, map[string]interface{}{
		"items": shipped,
		"notes": req.Notes,
	}))
	return nil
}

// adjustSourceRow rewrites a row with the residual quantity, or deletes the
// row when nothing remains.
func (s *Service) adjustSourceRow(ctx context.Context, user, source string, row int, fields map[string]string, residual int) error {
	if residual > 0 {
		updated := copyFields(fields)
		updated[models.FieldQuantity] = strconv.Itoa(residual)
		values := padTo(s.mapper.RowValues(source, updated), len(models.FieldOrder))
		// Timestamp and author only; the version column stays untouched.
		values = append(values, time.Now().Format(time.RFC3339), user)
		return s.adapter.WriteRange(ctx, source, sheets.RowRange(row), [][]string{values})
	}

	meta, err := s.adapter.GetMetadata(ctx, source)
	if err != nil {
		return err
	}
	return s.adapter.DeleteRows(ctx, source, meta.SheetID, int64(row-1), int64(row))
}

func parseQuantity(raw string) int {
	return models.InventoryRecord{Fields: map[string]string{models.FieldQuantity: raw}}.Quantity()
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
