package export

import (
	"context"
	"fmt"
)

// upsertRow writes row to tab, replacing the row whose column A equals
// row[0]. The tab is scanned linearly; a missing header row is written first.
func upsertRow(ctx context.Context, d Drive, sheetID, tab string, row []interface{}) error {
	ids, err := d.ReadRange(ctx, sheetID, tab+"!A:A")
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		if err := d.WriteRange(ctx, sheetID, tab+"!A1", [][]interface{}{headers[tab]}); err != nil {
			return err
		}
		ids = [][]interface{}{{headers[tab][0]}}
	}

	key := fmt.Sprint(row[0])
	for i := 1; i < len(ids); i++ {
		if len(ids[i]) > 0 && fmt.Sprint(ids[i][0]) == key {
			return d.WriteRange(ctx, sheetID, fmt.Sprintf("%s!A%d", tab, i+1), [][]interface{}{row})
		}
	}
	return d.AppendRows(ctx, sheetID, tab+"!A:A", [][]interface{}{row})
}
