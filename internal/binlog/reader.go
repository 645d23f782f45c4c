package binlog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/sirupsen/logrus"

	"graph-cdc/internal/config"
)

// Reader streams change events from the MySQL binlog and persists the
// replication position across restarts.
type Reader struct {
	syncer       *replication.BinlogSyncer
	streamer     *replication.BinlogStreamer
	position     mysql.Position
	positionFile string
	logger       *logrus.Logger
}

// NewReader connects to the MySQL server as a replica and starts streaming
// from the persisted position, or from the configured start position when no
// state file exists yet.
func NewReader(mysqlCfg config.MySQLConfig, binlogCfg config.BinlogConfig, logger *logrus.Logger) (*Reader, error) {
	syncerCfg := replication.BinlogSyncerConfig{
		ServerID: mysqlCfg.ServerID,
		Flavor:   mysqlCfg.Flavor,
		Host:     mysqlCfg.Host,
		Port:     uint16(mysqlCfg.Port),
		User:     mysqlCfg.User,
		Password: mysqlCfg.Password,
	}

	position := loadPosition(binlogCfg.PositionFile, binlogCfg.StartPosition, logger)

	syncer := replication.NewBinlogSyncer(syncerCfg)
	streamer, err := syncer.StartSync(position)
	if err != nil {
		return nil, fmt.Errorf("failed to start binlog sync: %w", err)
	}

	logger.Infof("Started binlog sync from position %s:%d", position.Name, position.Pos)

	return &Reader{
		syncer:       syncer,
		streamer:     streamer,
		position:     position,
		positionFile: binlogCfg.PositionFile,
		logger:       logger,
	}, nil
}

// loadPosition reads a "filename:position" state file. A file holding only
// a filename (the old format) is still accepted.
func loadPosition(path string, startPos uint32, logger *logrus.Logger) mysql.Position {
	position := mysql.Position{Pos: startPos}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return position
	}

	state := strings.TrimSpace(string(data))
	if idx := strings.LastIndexByte(state, ':'); idx > 0 && idx < len(state)-1 {
		if pos, err := strconv.ParseUint(state[idx+1:], 10, 32); err == nil {
			position.Name = state[:idx]
			position.Pos = uint32(pos)
			logger.Infof("Loaded binlog position from file: %s:%d", position.Name, position.Pos)
			return position
		}
	}

	position.Name = state
	logger.Infof("Loaded binlog position from file: %s", position.Name)
	return position
}

// SavePosition persists the current binlog position as "filename:position".
func (r *Reader) SavePosition(name string, pos uint32) error {
	if name == "" {
		name = r.position.Name
	}
	if name == "" {
		return nil
	}
	state := fmt.Sprintf("%s:%d", name, pos)
	if err := os.WriteFile(r.positionFile, []byte(state), 0644); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	r.position.Name = name
	r.position.Pos = pos
	return nil
}

// ReadEvent blocks for the next binlog event, up to a bounded timeout.
// Rotations update and persist the current file; every other event persists
// its end position.
func (r *Reader) ReadEvent() (*replication.BinlogEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event, err := r.streamer.GetEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get binlog event: %w", err)
	}

	if e, ok := event.Event.(*replication.RotateEvent); ok {
		if err := r.SavePosition(string(e.NextLogName), uint32(e.Position)); err != nil {
			r.logger.Warnf("Failed to save position: %v", err)
		}
	} else if event.Header.LogPos > 0 {
		if err := r.SavePosition(r.position.Name, event.Header.LogPos); err != nil {
			r.logger.Warnf("Failed to save position: %v", err)
		}
	}

	return event, nil
}

// LSN combines the current binlog file number and a byte position into a
// single monotonic sequence number: file number in the high 32 bits,
// position in the low 32. Rotating to a new file increases the file number,
// so the sequence stays ordered across rotations.
func (r *Reader) LSN(pos uint32) uint64 {
	return fileNumber(r.position.Name)<<32 | uint64(pos)
}

// fileNumber extracts the numeric suffix of a binlog file name such as
// "mysql-bin.000003". Names without a parseable suffix count as zero.
func fileNumber(name string) uint64 {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseUint(name[idx+1:], 10, 32)
	if err != nil {
		return 0
	}
	return n
}

// Close stops the binlog stream.
func (r *Reader) Close() {
	if r.syncer != nil {
		r.syncer.Close()
	}
}
