package audiobridge

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeRunner records every command and fails the ones listed in fail.
type fakeRunner struct {
	commands []string
	fail     map[string]bool
	outputs  map[string]string
}

func (f *fakeRunner) Run(cmd string) error {
	f.commands = append(f.commands, cmd)
	if f.fail[cmd] {
		return fmt.Errorf("%w: %s", ErrCommandFailed, cmd)
	}
	return nil
}

func (f *fakeRunner) Output(cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	if f.fail[cmd] {
		return "", fmt.Errorf("%w: %s", ErrCommandFailed, cmd)
	}
	return f.outputs[cmd], nil
}

type fakeEndpoint struct {
	pools    []*fakePool
	failPool bool
}

func (e *fakeEndpoint) NewPool(name string, size, increment int) (Pool, error) {
	if e.failPool {
		return nil, errors.New("out of memory")
	}
	p := &fakePool{name: name, increment: increment}
	e.pools = append(e.pools, p)
	return p, nil
}

type fakePool struct {
	name      string
	increment int
	released  bool
}

func (p *fakePool) Name() string   { return p.name }
func (p *fakePool) Get() []byte    { return make([]byte, p.increment) }
func (p *fakePool) Put(buf []byte) {}
func (p *fakePool) Release()       { p.released = true }

func newTestSet() (*Set, *fakeRunner, *fakeEndpoint) {
	runner := &fakeRunner{fail: map[string]bool{}}
	return NewSet(runner, SM6150Profile(), testLog()), runner, &fakeEndpoint{}
}

func commandLines(seq []Command) []string {
	lines := make([]string, len(seq))
	for i, c := range seq {
		lines[i] = c.Line
	}
	return lines
}

func TestInitInvalidSlot(t *testing.T) {
	set, runner, endpoint := newTestSet()

	for _, slot := range []int{-1, MaxSims, 5} {
		err := set.Init(slot, endpoint)
		assert.ErrorIs(t, err, ErrInvalidSlot, "slot %d", slot)
	}
	assert.Empty(t, runner.commands)
	assert.Empty(t, endpoint.pools)
}

func TestInitAcquiresPool(t *testing.T) {
	set, _, endpoint := newTestSet()

	require.NoError(t, set.Init(0, endpoint))

	require.Len(t, endpoint.pools, 1)
	assert.Equal(t, "audio_bridge", endpoint.pools[0].name)
	assert.NotNil(t, set.bridges[0].pool)
	assert.False(t, set.Active(0))
}

func TestInitPoolFailure(t *testing.T) {
	set, _, endpoint := newTestSet()
	endpoint.failPool = true

	err := set.Init(0, endpoint)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSlot)
}

func TestInitResetsPreviousState(t *testing.T) {
	set, _, endpoint := newTestSet()

	require.NoError(t, set.Init(1, endpoint))
	require.NoError(t, set.Start(1, nil, nil))
	require.True(t, set.Active(1))

	require.NoError(t, set.Init(1, endpoint))
	assert.False(t, set.Active(1))
}

func TestStartInvalidSlot(t *testing.T) {
	set, runner, _ := newTestSet()

	for _, slot := range []int{-1, MaxSims} {
		err := set.Start(slot, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidSlot, "slot %d", slot)
	}
	assert.Empty(t, runner.commands)
}

func TestStartIssuesEnableSequenceInOrder(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))

	require.NoError(t, set.Start(0, nil, nil))

	assert.Equal(t, commandLines(set.profile.Enable), runner.commands)
	assert.True(t, set.Active(0))
}

func TestStartTwiceRoutesOnce(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))

	require.NoError(t, set.Start(0, nil, nil))
	issued := len(runner.commands)

	require.NoError(t, set.Start(0, nil, nil))
	assert.Len(t, runner.commands, issued, "second start must not re-run the routing sequence")
	assert.True(t, set.Active(0))
}

func TestStartFatalStepFailure(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))

	first := set.profile.Enable[0].Line
	runner.fail[first] = true

	err := set.Start(0, nil, nil)
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.False(t, set.Active(0))
	assert.Equal(t, []string{first}, runner.commands, "sequence must abort at the failed step")
}

func TestStartNonFatalStepFailure(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))

	// setSpeakerphoneOn and setMode are device specific and merely logged
	// when they fail.
	runner.fail[`service call audio 8 i32 1`] = true
	runner.fail[`service call audio 28 i32 2`] = true

	require.NoError(t, set.Start(0, nil, nil))
	assert.True(t, set.Active(0))
	assert.Equal(t, commandLines(set.profile.Enable), runner.commands)
}

func TestStopNeverStartedIsNoop(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))

	set.Stop(0)
	assert.Empty(t, runner.commands)
}

func TestStopInvalidSlotIsNoop(t *testing.T) {
	set, runner, _ := newTestSet()

	set.Stop(-1)
	set.Stop(MaxSims)
	assert.Empty(t, runner.commands)
}

func TestStopIssuesDisableSequenceInOrder(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))
	require.NoError(t, set.Start(0, nil, nil))
	runner.commands = nil

	set.Stop(0)

	assert.Equal(t, commandLines(set.profile.Disable), runner.commands)
	assert.False(t, set.Active(0))
}

func TestStopClearsActiveDespiteRestorationFailure(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))
	require.NoError(t, set.Start(0, nil, nil))
	runner.commands = nil

	first := set.profile.Disable[0].Line
	runner.fail[first] = true

	set.Stop(0)

	assert.False(t, set.Active(0), "stop must always clear the active flag")
	assert.Equal(t, []string{first}, runner.commands, "restoration aborts at the failed step")
}

func TestDestroyZeroesRecord(t *testing.T) {
	set, _, endpoint := newTestSet()
	require.NoError(t, set.Init(0, endpoint))
	require.NoError(t, set.Start(0, nil, nil))

	set.Destroy(0)

	require.Len(t, endpoint.pools, 1)
	assert.True(t, endpoint.pools[0].released)
	assert.Equal(t, bridge{}, set.bridges[0])
	assert.False(t, set.Active(0))
}

func TestDestroyInactiveSlotSkipsRouting(t *testing.T) {
	set, runner, endpoint := newTestSet()
	require.NoError(t, set.Init(1, endpoint))

	set.Destroy(1)

	assert.Empty(t, runner.commands)
	assert.True(t, endpoint.pools[0].released)
	assert.Equal(t, bridge{}, set.bridges[1])
}

func TestDestroyInvalidSlotIsNoop(t *testing.T) {
	set, runner, _ := newTestSet()

	set.Destroy(-1)
	set.Destroy(MaxSims)
	assert.Empty(t, runner.commands)
}

func TestActiveInvalidSlot(t *testing.T) {
	set, _, _ := newTestSet()
	assert.False(t, set.Active(-1))
	assert.False(t, set.Active(MaxSims))
}

func TestRuntimeCallbacksAreInert(t *testing.T) {
	set, runner, _ := newTestSet()

	set.OnGsmAudioCaptured(0, make([]int16, 160))
	assert.Zero(t, set.GsmAudioSamples(0, make([]int16, 160)))
	assert.Empty(t, runner.commands)
}
