package sim

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

const (
	arenaBase pgbridge.ArenaPtr = 0x5500_0000_1000
	arenaStep pgbridge.ArenaPtr = 0x100

	chunkBase pgbridge.Ptr = 0x7f00_0000_0000
	// chunkGap keeps chunks apart so a read past the end of one faults
	// instead of landing in the next.
	chunkGap pgbridge.Ptr = 0x1000
)

// Global arena names, in the order diagnostics report them.
const (
	NameTop            = "TopMemoryContext"
	NameError          = "ErrorContext"
	NameCache          = "CacheMemoryContext"
	NameMessage        = "MessageContext"
	NameTopTransaction = "TopTransactionContext"
	NameCurrent        = "CurrentMemoryContext"
)

// Context is one node of the engine's arena tree.
type Context struct {
	callbacks []func()
	children  []*Context
	chunks    []*chunk
	blocks    []pgbridge.Ptr
	parent    *Context
	name      string
	id        pgbridge.ArenaPtr
	allocated uint64
	blockSize uint32
	tag       pgbridge.NodeTag
}

type chunk struct {
	buf    []byte
	owner  *Context
	base   pgbridge.Ptr
	offset uint32
}

type block struct {
	ctx   *Context
	size  uint32
	freed bool
}

// Engine is a simulated host. All methods are safe for concurrent use, but
// the host signal is delivered on the goroutine that raised it, so calls that
// may raise belong on the goroutine that owns the surrounding Intercept.
type Engine struct {
	contexts   map[pgbridge.ArenaPtr]*Context
	blocks     map[pgbridge.Ptr]*block
	cfg        Config
	chunks     []*chunk
	notices    []*errors.Report
	top        *Context
	errorCtx   *Context
	cache      *Context
	message    *Context
	topTxn     *Context
	nextID     pgbridge.ArenaPtr
	nextAddr   pgbridge.Ptr
	current    pgbridge.ArenaPtr
	used       uint64
	mu         sync.Mutex
	depth      int
	cancel     bool
	terminated bool
}

var (
	_ pgbridge.Host      = (*Engine)(nil)
	_ pgbridge.Inspector = (*Engine)(nil)
)

// New creates an engine with the default configuration.
func New() *Engine {
	e, err := NewWithConfig(nil)
	if err != nil {
		panic(err)
	}
	return e
}

// NewWithConfig creates an engine with cfg. A nil cfg uses defaults.
func NewWithConfig(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		contexts: make(map[pgbridge.ArenaPtr]*Context),
		blocks:   make(map[pgbridge.Ptr]*block),
		nextID:   arenaBase,
		nextAddr: chunkBase,
	}
	if cfg != nil {
		e.cfg = *cfg
	}

	e.top = e.newContextLocked(nil, NameTop, pgbridge.TagAllocSet, 0)
	e.errorCtx = e.newContextLocked(e.top, NameError, pgbridge.TagAllocSet, 0)
	e.cache = e.newContextLocked(e.top, NameCache, pgbridge.TagAllocSet, 0)
	e.message = e.newContextLocked(e.top, NameMessage, pgbridge.TagAllocSet, 0)
	e.topTxn = e.newContextLocked(e.top, NameTopTransaction, pgbridge.TagAllocSet, 0)
	e.current = e.top.id

	Logger().Debug("engine created",
		zap.Int("chunk_size", e.cfg.chunkSize()),
		zap.Uint64("memory_limit", e.cfg.MemoryLimit))
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// MessageContext returns the per-message global arena.
func (e *Engine) MessageContext() pgbridge.ArenaPtr { return e.message.id }

// ErrorContext returns the arena error data is staged in.
func (e *Engine) ErrorContext() pgbridge.ArenaPtr { return e.errorCtx.id }

// CacheContext returns the cache global arena.
func (e *Engine) CacheContext() pgbridge.ArenaPtr { return e.cache.id }

// TopTransactionContext returns the top transaction global arena.
func (e *Engine) TopTransactionContext() pgbridge.ArenaPtr { return e.topTxn.id }

// NewContext creates an arena named name under parent.
func (e *Engine) NewContext(parent pgbridge.ArenaPtr, name string, tag pgbridge.NodeTag) (pgbridge.ArenaPtr, error) {
	if tag == pgbridge.TagSlab {
		return 0, errors.InvalidInput(errors.PhaseHost, "slab arenas need a block size, use NewSlabContext")
	}
	return e.newContext(parent, name, tag, 0)
}

// NewSlabContext creates a slab arena whose blocks are all blockSize bytes.
func (e *Engine) NewSlabContext(parent pgbridge.ArenaPtr, name string, blockSize uint32) (pgbridge.ArenaPtr, error) {
	if blockSize == 0 || blockSize > MaxAllocSize {
		return 0, errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("invalid slab block size %d", blockSize))
	}
	return e.newContext(parent, name, pgbridge.TagSlab, blockSize)
}

func (e *Engine) newContext(parent pgbridge.ArenaPtr, name string, tag pgbridge.NodeTag, blockSize uint32) (pgbridge.ArenaPtr, error) {
	if !pgbridge.IsLiveArena(tag) {
		return 0, errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("invalid arena tag %d", tag))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.liveLocked(parent)
	if err != nil {
		return 0, err
	}
	c := e.newContextLocked(p, name, tag, blockSize)
	Logger().Debug("context created",
		zap.String("name", name),
		zap.String("parent", p.name),
		zap.Stringer("tag", tag),
		zap.Uintptr("ptr", uintptr(c.id)))
	return c.id, nil
}

func (e *Engine) newContextLocked(parent *Context, name string, tag pgbridge.NodeTag, blockSize uint32) *Context {
	c := &Context{
		id:        e.nextID,
		name:      name,
		tag:       tag,
		parent:    parent,
		blockSize: blockSize,
	}
	e.nextID += arenaStep
	e.contexts[c.id] = c
	if parent != nil {
		parent.children = append(parent.children, c)
	}
	return c
}

func (e *Engine) liveLocked(p pgbridge.ArenaPtr) (*Context, error) {
	c, ok := e.contexts[p]
	if !ok || !pgbridge.IsLiveArena(c.tag) {
		return nil, errors.NotFound(errors.PhaseHost, "memory context", fmt.Sprintf("%#x", uintptr(p)))
	}
	return c, nil
}

// Reset releases every block of arena, deletes its descendants, and runs
// the registered reset callbacks, newest first. The arena stays usable.
func (e *Engine) Reset(arena pgbridge.ArenaPtr) error {
	e.mu.Lock()
	c, err := e.liveLocked(arena)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	var cbs []func()
	e.resetLocked(c, &cbs)
	e.mu.Unlock()

	Logger().Debug("context reset", zap.String("name", c.name), zap.Int("callbacks", len(cbs)))
	runCallbacks(cbs)
	return nil
}

// Delete resets arena and removes it from the tree. Its pointer stays
// readable through ArenaTag, which then reports TagInvalid.
func (e *Engine) Delete(arena pgbridge.ArenaPtr) error {
	e.mu.Lock()
	c, err := e.liveLocked(arena)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if c.parent == nil || c == e.errorCtx || c == e.cache || c == e.message || c == e.topTxn {
		e.mu.Unlock()
		return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("cannot delete global context %q", c.name))
	}
	var cbs []func()
	e.deleteLocked(c, &cbs)
	e.mu.Unlock()

	Logger().Debug("context deleted", zap.String("name", c.name), zap.Int("callbacks", len(cbs)))
	runCallbacks(cbs)
	return nil
}

// SetParent moves arena under parent, which must not be its descendant.
func (e *Engine) SetParent(arena, parent pgbridge.ArenaPtr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.liveLocked(arena)
	if err != nil {
		return err
	}
	p, err := e.liveLocked(parent)
	if err != nil {
		return err
	}
	if c.parent == nil {
		return errors.InvalidInput(errors.PhaseHost, "cannot reparent TopMemoryContext")
	}
	for n := p; n != nil; n = n.parent {
		if n == c {
			return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("context %q would become its own ancestor", c.name))
		}
	}
	unlink(c)
	c.parent = p
	p.children = append(p.children, c)
	return nil
}

// Children returns the pointers of arena's direct children.
func (e *Engine) Children(arena pgbridge.ArenaPtr) []pgbridge.ArenaPtr {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[arena]
	if !ok {
		return nil
	}
	out := make([]pgbridge.ArenaPtr, len(c.children))
	for i, ch := range c.children {
		out[i] = ch.id
	}
	return out
}

// Used returns the bytes currently allocated across all arenas.
func (e *Engine) Used() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.used
}

// ArenaInfo implements pgbridge.Inspector.
func (e *Engine) ArenaInfo(arena pgbridge.ArenaPtr) (pgbridge.ArenaInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[arena]
	if !ok {
		return pgbridge.ArenaInfo{}, false
	}
	info := pgbridge.ArenaInfo{
		Name:      c.name,
		Tag:       c.tag,
		Allocated: c.allocated,
		Children:  len(c.children),
	}
	if c.parent != nil {
		info.Parent = c.parent.id
	}
	switch c {
	case e.top:
		info.Global = NameTop
	case e.errorCtx:
		info.Global = NameError
	case e.cache:
		info.Global = NameCache
	case e.message:
		info.Global = NameMessage
	case e.topTxn:
		info.Global = NameTopTransaction
	default:
		if c.id == e.current {
			info.Global = NameCurrent
		}
	}
	return info, true
}

func (e *Engine) resetLocked(c *Context, cbs *[]func()) {
	for len(c.children) > 0 {
		e.deleteLocked(c.children[len(c.children)-1], cbs)
	}
	for i := len(c.callbacks) - 1; i >= 0; i-- {
		*cbs = append(*cbs, c.callbacks[i])
	}
	c.callbacks = nil
	e.releaseLocked(c)
}

func (e *Engine) deleteLocked(c *Context, cbs *[]func()) {
	e.resetLocked(c, cbs)
	unlink(c)
	c.parent = nil
	c.tag = pgbridge.TagInvalid
}

func (e *Engine) releaseLocked(c *Context) {
	for _, p := range c.blocks {
		delete(e.blocks, p)
	}
	for _, ch := range c.chunks {
		i := sort.Search(len(e.chunks), func(i int) bool { return e.chunks[i].base >= ch.base })
		if i < len(e.chunks) && e.chunks[i] == ch {
			e.chunks = append(e.chunks[:i], e.chunks[i+1:]...)
		}
		ch.buf = nil
		ch.owner = nil
	}
	e.used -= c.allocated
	c.allocated = 0
	c.blocks = nil
	c.chunks = nil
}

func unlink(c *Context) {
	p := c.parent
	if p == nil {
		return
	}
	for i, ch := range p.children {
		if ch == c {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

func runCallbacks(cbs []func()) {
	for _, fn := range cbs {
		fn()
	}
}

// Alloc implements pgbridge.Host. Failures raise the host signal unless
// AllocNoOOM is set and the failure is exhaustion.
func (e *Engine) Alloc(arena pgbridge.ArenaPtr, size uint32, flags pgbridge.AllocFlags) pgbridge.Ptr {
	e.mu.Lock()
	c := e.contexts[arena]
	p, rep := e.allocLocked(c, size, flags)
	e.mu.Unlock()
	if rep != nil {
		e.Raise(rep)
	}
	return p
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

func (e *Engine) allocLocked(c *Context, size uint32, flags pgbridge.AllocFlags) (pgbridge.Ptr, *errors.Report) {
	if c == nil || !pgbridge.IsLiveArena(c.tag) {
		return 0, internalError("invalid memory context")
	}
	if size > MaxAllocSize {
		return 0, internalError(fmt.Sprintf("invalid memory alloc request size %d", size))
	}
	if c.tag == pgbridge.TagSlab && size != c.blockSize {
		return 0, internalError(fmt.Sprintf("unexpected alloc chunk size %d (expected %d)", size, c.blockSize))
	}

	need := align8(uint64(size))
	if need == 0 {
		need = 8
	}
	if limit := e.cfg.MemoryLimit; limit > 0 && c != e.errorCtx && e.used+need > limit {
		if flags&pgbridge.AllocNoOOM != 0 {
			return 0, nil
		}
		return 0, &errors.Report{
			Level:   errors.LevelError,
			Code:    errors.CodeOutOfMemory,
			Message: "out of memory",
			Detail:  fmt.Sprintf("Failed on request of size %d in memory context \"%s\".", size, c.name),
		}
	}

	var ch *chunk
	if n := len(c.chunks); n > 0 {
		ch = c.chunks[n-1]
	}
	if ch == nil || uint64(ch.offset)+need > uint64(len(ch.buf)) {
		ch = e.newChunkLocked(c, need)
	}
	off := ch.offset
	p := ch.base + pgbridge.Ptr(off)
	ch.offset += uint32(need)
	if flags&pgbridge.AllocZero != 0 {
		clear(ch.buf[off : uint64(off)+need])
	}

	e.blocks[p] = &block{ctx: c, size: size}
	c.blocks = append(c.blocks, p)
	c.allocated += need
	e.used += need
	return p, nil
}

func (e *Engine) newChunkLocked(c *Context, need uint64) *chunk {
	size := uint64(e.cfg.chunkSize())
	if need > size {
		size = need
	}
	ch := &chunk{
		buf:   make([]byte, size),
		owner: c,
		base:  e.nextAddr,
	}
	e.nextAddr += pgbridge.Ptr(align8(size)) + chunkGap
	c.chunks = append(c.chunks, ch)
	e.chunks = append(e.chunks, ch)
	return ch
}

// Free implements pgbridge.Host.
func (e *Engine) Free(arena pgbridge.ArenaPtr, p pgbridge.Ptr) {
	e.mu.Lock()
	rep := e.freeLocked(arena, p)
	e.mu.Unlock()
	if rep != nil {
		e.Raise(rep)
	}
}

func (e *Engine) freeLocked(arena pgbridge.ArenaPtr, p pgbridge.Ptr) *errors.Report {
	b, ok := e.blocks[p]
	if !ok || b.freed {
		return internalError(fmt.Sprintf("pfree called with invalid pointer %#x", uint64(p)))
	}
	if b.ctx.id != arena {
		return internalError(fmt.Sprintf("pointer %#x does not belong to memory context \"%s\"", uint64(p), b.ctx.name))
	}
	b.freed = true
	need := align8(uint64(b.size))
	if need == 0 {
		need = 8
	}
	b.ctx.allocated -= need
	e.used -= need
	return nil
}

// ArenaTag implements pgbridge.Host. Unknown pointers read as TagInvalid.
func (e *Engine) ArenaTag(arena pgbridge.ArenaPtr) pgbridge.NodeTag {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[arena]
	if !ok {
		return pgbridge.TagInvalid
	}
	return c.tag
}

// TopArena implements pgbridge.Host.
func (e *Engine) TopArena() pgbridge.ArenaPtr {
	return e.top.id
}

// CurrentArena implements pgbridge.Host.
func (e *Engine) CurrentArena() pgbridge.ArenaPtr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetCurrentArena implements pgbridge.Host. Like the host global it models,
// the slot accepts any value; allocating from a dead current arena raises.
func (e *Engine) SetCurrentArena(arena pgbridge.ArenaPtr) {
	e.mu.Lock()
	e.current = arena
	e.mu.Unlock()
}

// RegisterResetCallback implements pgbridge.Host. Callbacks on an arena that
// is not live are dropped.
func (e *Engine) RegisterResetCallback(arena pgbridge.ArenaPtr, fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[arena]
	if !ok || !pgbridge.IsLiveArena(c.tag) {
		return
	}
	c.callbacks = append(c.callbacks, fn)
}

// Read implements pgbridge.Memory. The returned slice aliases host memory
// and is only meaningful until the owning arena is reset.
func (e *Engine) Read(p pgbridge.Ptr, length uint32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, off, err := e.rangeLocked(p, length)
	if err != nil {
		return nil, err
	}
	return ch.buf[off : off+uint64(length) : off+uint64(length)], nil
}

// Write implements pgbridge.Memory.
func (e *Engine) Write(p pgbridge.Ptr, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, off, err := e.rangeLocked(p, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(ch.buf[off:], data)
	return nil
}

// ReadU8 implements pgbridge.Memory.
func (e *Engine) ReadU8(p pgbridge.Ptr) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, off, err := e.rangeLocked(p, 1)
	if err != nil {
		return 0, err
	}
	return ch.buf[off], nil
}

// ReadU32 implements pgbridge.Memory. Host words are little-endian.
func (e *Engine) ReadU32(p pgbridge.Ptr) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, off, err := e.rangeLocked(p, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(ch.buf[off:]), nil
}

// WriteU32 implements pgbridge.Memory.
func (e *Engine) WriteU32(p pgbridge.Ptr, value uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, off, err := e.rangeLocked(p, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(ch.buf[off:], value)
	return nil
}

func (e *Engine) rangeLocked(p pgbridge.Ptr, length uint32) (*chunk, uint64, error) {
	i := sort.Search(len(e.chunks), func(i int) bool { return e.chunks[i].base > p }) - 1
	if i < 0 {
		return nil, 0, outOfBounds(p, length)
	}
	ch := e.chunks[i]
	off := uint64(p - ch.base)
	if off+uint64(length) > uint64(len(ch.buf)) {
		return nil, 0, outOfBounds(p, length)
	}
	return ch, off, nil
}

func outOfBounds(p pgbridge.Ptr, length uint32) error {
	return errors.New(errors.PhaseHost, errors.KindOutOfBounds).
		Value(uint64(p)).
		Detail("memory access out of bounds: ptr=%#x, length=%d", uint64(p), length).
		Build()
}

func internalError(msg string) *errors.Report {
	return &errors.Report{
		Level:   errors.LevelError,
		Code:    errors.CodeInternalError,
		Message: msg,
	}
}
