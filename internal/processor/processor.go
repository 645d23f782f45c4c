package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/replication"
	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"graph-cdc/internal/config"
	"graph-cdc/internal/models"
)

// Processor consumes binlog events and drives the change lifecycle: each
// affected row is mapped to a graph element, wrapped in a SourceChange with
// capture timing and its log sequence number, optionally transformed,
// finalized and published.
type Processor struct {
	reader      Reader
	publisher   Publisher
	mapper      *Mapper
	transformer *Transformer
	logger      *logrus.Logger
	tables      map[uint64]*replication.TableMapEvent
	columnNames map[string][]string // keyed by "database.table"
	columnTypes map[string][]string
	db          *sql.DB // for fetching column metadata
}

// Reader supplies binlog events and the sequence number for a position.
type Reader interface {
	ReadEvent() (*replication.BinlogEvent, error)
	LSN(pos uint32) uint64
}

// Publisher ships an encoded change to the transport.
type Publisher interface {
	Publish(change *models.SourceChange) error
}

// NewProcessor creates a processor. transformer may be nil.
func NewProcessor(reader Reader, publisher Publisher, mapper *Mapper, transformer *Transformer, mysqlCfg config.MySQLConfig, logger *logrus.Logger) (*Processor, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", mysqlCfg.User, mysqlCfg.Password, mysqlCfg.Host, mysqlCfg.Port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Processor{
		reader:      reader,
		publisher:   publisher,
		mapper:      mapper,
		transformer: transformer,
		logger:      logger,
		tables:      make(map[uint64]*replication.TableMapEvent),
		columnNames: make(map[string][]string),
		columnTypes: make(map[string][]string),
		db:          db,
	}, nil
}

// Close releases the column-metadata connection.
func (p *Processor) Close() {
	if p.db != nil {
		p.db.Close()
	}
}

// getColumnInfo fetches column names and types for a table, cached after the
// first lookup.
func (p *Processor) getColumnInfo(database, table string) ([]string, []string, error) {
	cacheKey := database + "." + table
	if names, ok := p.columnNames[cacheKey]; ok {
		return names, p.columnTypes[cacheKey], nil
	}

	query := `
		SELECT COLUMN_NAME, COLUMN_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := p.db.Query(query, database, table)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query column info: %w", err)
	}
	defer rows.Close()

	var names, types []string
	for rows.Next() {
		var name, colType string
		if err := rows.Scan(&name, &colType); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		names = append(names, name)
		types = append(types, colType)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating columns: %w", err)
	}

	p.columnNames[cacheKey] = names
	p.columnTypes[cacheKey] = types
	p.logger.Debugf("Fetched %d columns for %s", len(names), cacheKey)
	return names, types, nil
}

// columnsFor resolves column names and types for a row event. MySQL 8.0+
// carries names in the table map (binlog_row_metadata=FULL); older servers
// need an INFORMATION_SCHEMA lookup.
func (p *Processor) columnsFor(tableMap *replication.TableMapEvent, database, table string) ([]string, []string, error) {
	if len(tableMap.ColumnName) > 0 {
		names := make([]string, len(tableMap.ColumnName))
		for i, col := range tableMap.ColumnName {
			names[i] = string(col)
		}
		_, types, err := p.getColumnInfo(database, table)
		if err != nil {
			p.logger.Warnf("Failed to get column types for %s.%s: %v, continuing without type info", database, table, err)
			types = nil
		}
		return names, types, nil
	}

	names, types, err := p.getColumnInfo(database, table)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get column info: %w", err)
	}
	if len(names) < int(tableMap.ColumnCount) {
		p.logger.Warnf("Column count mismatch for %s.%s: expected %d, got %d", database, table, tableMap.ColumnCount, len(names))
	}
	return names, types, nil
}

// convertValue coerces a raw binlog value into its JSON representation.
// go-mysql hands string-ish columns back as []byte; those are converted to
// strings for text-like column types, and kept as bytes (base64 on the wire)
// for binary columns.
func convertValue(value interface{}, colType string) interface{} {
	b, ok := value.([]byte)
	if !ok {
		return value
	}
	if colType == "" {
		// No type info available, assume text
		return string(b)
	}
	upper := strings.ToUpper(colType)
	for _, textual := range []string{"CHAR", "TEXT", "ENUM", "SET", "JSON", "DATE", "TIME", "YEAR", "DECIMAL"} {
		if strings.Contains(upper, textual) {
			return string(b)
		}
	}
	return value
}

// processRowsEvent publishes one SourceChange per affected row.
func (p *Processor) processRowsEvent(header *replication.EventHeader, event *replication.RowsEvent, op models.ChangeOp) error {
	captureStart := uint64(time.Now().UnixNano())

	tableMap, ok := p.tables[event.TableID]
	if !ok {
		return fmt.Errorf("table map not found for table ID %d", event.TableID)
	}
	database := string(event.Table.Schema)
	table := string(event.Table.Table)

	columns, types, err := p.columnsFor(tableMap, database, table)
	if err != nil {
		return err
	}

	sourceNs := uint64(header.Timestamp) * uint64(time.Second)
	lsn := p.reader.LSN(header.LogPos)

	published := 0
	for _, row := range affectedRows(event.Rows, op) {
		values := make([]interface{}, len(row))
		for i, v := range row {
			colType := ""
			if i < len(types) {
				colType = types[i]
			}
			values[i] = convertValue(v, colType)
		}

		element, err := p.mapper.MapRow(database, table, columns, values)
		if err != nil {
			p.logger.Errorf("Error mapping row from %s.%s: %v", database, table, err)
			continue
		}

		var metadata *models.PropertyMap
		if p.transformer != nil {
			metadata, err = p.transformer.Apply(op, element, lsn, sourceNs)
			if err != nil {
				if errors.Is(err, ErrChangeRejected) {
					p.logger.Debugf("Change rejected by transformer: %s.%s (%s)", database, table, op)
					continue
				}
				p.logger.Errorf("Error transforming change from %s.%s: %v", database, table, err)
				continue
			}
		}

		change := models.NewSourceChange(op, element, captureStart, sourceNs, lsn, metadata)
		change.SetReactivatorEndNs(uint64(time.Now().UnixNano()))

		if err := p.publisher.Publish(change); err != nil {
			p.logger.Errorf("Error publishing change from %s.%s: %v", database, table, err)
			continue
		}
		published++
	}

	if published > 0 {
		p.logger.Infof("Processed %s for %s.%s (%d changes, lsn %d)", op, database, table, published, lsn)
	}
	return nil
}

// affectedRows selects the row images a change is built from. Update events
// interleave before and after images; the after image carries the change.
// Insert and delete events carry one image per row.
func affectedRows(rows [][]interface{}, op models.ChangeOp) [][]interface{} {
	if op != models.OpUpdate {
		return rows
	}
	after := make([][]interface{}, 0, len(rows)/2)
	for i := 1; i < len(rows); i += 2 {
		after = append(after, rows[i])
	}
	return after
}

// Start runs the event loop until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting event processor...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, stopping event processor")
			return nil
		default:
			event, err := p.reader.ReadEvent()
			if err != nil {
				// Read timeouts are expected while the source is idle
				if errors.Is(err, context.DeadlineExceeded) ||
					strings.Contains(err.Error(), "context deadline exceeded") {
					continue
				}
				p.logger.Errorf("Error reading binlog event: %v", err)
				time.Sleep(1 * time.Second)
				continue
			}

			switch e := event.Event.(type) {
			case *replication.TableMapEvent:
				p.tables[e.TableID] = e
				p.logger.Debugf("Cached table map for %s.%s (ID: %d)", string(e.Schema), string(e.Table), e.TableID)

			case *replication.RowsEvent:
				op, ok := opForEventType(event.Header.EventType)
				if !ok {
					p.logger.Debugf("Unhandled row event type: %d", event.Header.EventType)
					continue
				}
				if err := p.processRowsEvent(event.Header, e, op); err != nil {
					p.logger.Errorf("Error processing %s event: %v", op, err)
				}

			case *replication.RotateEvent:
				p.logger.Infof("Binlog rotated to: %s", string(e.NextLogName))

			case *replication.QueryEvent:
				p.logger.Debugf("Query event: %s", string(e.Query))

			case *replication.XIDEvent:
				p.logger.Debugf("XID event: %d", e.XID)

			default:
				p.logger.Debugf("Unhandled event type: %T", e)
			}
		}
	}
}

func opForEventType(eventType replication.EventType) (models.ChangeOp, bool) {
	switch eventType {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return models.OpCreate, true
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return models.OpUpdate, true
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return models.OpDelete, true
	}
	return 0, false
}
