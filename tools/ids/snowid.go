package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Generator hands out snowflake ids: 41 bits of milliseconds since 2020-01-01,
// 10 bits of node id, 12 bits of per-millisecond sequence.
type Generator struct {
	mu       sync.Mutex
	nodeID   int64
	seq      int64
	lastTSMS int64
	now      func() int64
}

func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Generator{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

var (
	defaultGen *Generator
	once       sync.Once
)

func initDefault() {
	once.Do(func() {
		defaultGen = NewGenerator(1)
	})
}

// Generate 生成一个新的雪花ID
func Generate() int64 {
	initDefault()
	return defaultGen.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID 设置 nodeID（0~1023），在 main() 初始化时调用
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	defaultGen.mu.Lock()
	defaultGen.nodeID = nodeID
	defaultGen.mu.Unlock()
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.lastTSMS {
		// clock went backwards: keep issuing from the last timestamp
		now = g.lastTSMS
	}
	if now == g.lastTSMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.lastTSMS {
				time.Sleep(100 * time.Microsecond)
				now = g.now()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastTSMS = now

	ts := (now - epoch) & (1<<41 - 1)
	return ts<<(nodeBits+seqBits) | g.nodeID<<seqBits | g.seq
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}
