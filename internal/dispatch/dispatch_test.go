package dispatch

import (
	"testing"

	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	serviceAttrs map[string]string
	proxyAttrs   map[string]string
	started      []domain.Selector
	statusLines  []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{serviceAttrs: make(map[string]string), proxyAttrs: make(map[string]string)}
}

func (f *fakeTarget) SetServiceAttr(name, attr, value string) error {
	f.serviceAttrs[name+"."+attr] = value
	return nil
}
func (f *fakeTarget) SetSocketAttr(name, attr, value string) error { return nil }
func (f *fakeTarget) SetProxyAttr(name, attr, value string) error {
	f.proxyAttrs[name+"."+attr] = value
	return nil
}
func (f *fakeTarget) SetConsoleAttr(attr, value string) error { return nil }
func (f *fakeTarget) SetLoggerAttr(attr, value string) error  { return nil }

func (f *fakeTarget) Start(sel domain.Selector) error {
	f.started = append(f.started, sel)
	return nil
}
func (f *fakeTarget) Stop(sel domain.Selector) error    { return nil }
func (f *fakeTarget) Restart(sel domain.Selector) error { return nil }
func (f *fakeTarget) Up(sel domain.Selector) error      { return nil }
func (f *fakeTarget) Down(sel domain.Selector) error    { return nil }
func (f *fakeTarget) Destroy(sel domain.Selector) error { return nil }
func (f *fakeTarget) ProxyUp(name string) error         { return nil }
func (f *fakeTarget) ProxyDown(name string) error       { return nil }
func (f *fakeTarget) List() []string                    { return []string{"s1", "s2"} }
func (f *fakeTarget) Desc(sel domain.Selector) ([]string, error) {
	return f.statusLines, nil
}
func (f *fakeTarget) Status(sel domain.Selector) ([]string, error) {
	return f.statusLines, nil
}
func (f *fakeTarget) Pids(sel domain.Selector) ([]string, error) { return nil, nil }
func (f *fakeTarget) ProxyStatus() []string                      { return nil }
func (f *fakeTarget) Bind(socket string) error                   { return nil }
func (f *fakeTarget) Version() string                            { return "1.0.0" }
func (f *fakeTarget) Shutdown() error                            { return nil }
func (f *fakeTarget) ReloadConfig() error                        { return nil }

func TestDispatch_ServiceAttrAssignment(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, `service web cmd="sleep 1"`, true)
	assert.Equal(t, "OK", resp)
	assert.Equal(t, `"sleep 1"`, target.serviceAttrs["web.cmd"])
}

func TestDispatch_RejectsUnprivileged(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, "service web cmd=sleep", false)
	assert.Contains(t, resp, "ERROR:")
}

func TestDispatch_CommentOnlyLineIsVoid(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, "   # just a comment", true)
	assert.Equal(t, "ERROR: command is void", resp)
}

func TestDispatch_CommandStartWithSelector(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, "command start service web", true)
	require.Equal(t, "OK", resp)
	require.Len(t, target.started, 1)
	assert.Equal(t, domain.SelectorService, target.started[0].Kind)
	assert.Equal(t, "web", target.started[0].Value)
}

func TestDispatch_CommandStatusAll(t *testing.T) {
	target := newFakeTarget()
	target.statusLines = []string{"web\trunning\t123\t\t\t\t\tsleep 1"}
	resp := Dispatch(target, "command status", true)
	assert.Contains(t, resp, "web\trunning\t123")
	assert.Contains(t, resp, "OK")
}

func TestDispatch_UnknownVerb(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, "frobnicate", true)
	assert.Contains(t, resp, "ERROR:")
}

func TestDispatch_ProxyServiceSpaceForm(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, "proxy front service somesvc", true)
	assert.Equal(t, "OK", resp)
	assert.Equal(t, "somesvc", target.proxyAttrs["front.service"])
}

func TestDispatch_RejectsReservedName(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, `service - cmd="sleep 1"`, true)
	assert.Contains(t, resp, "ERROR:")
}

func TestDispatch_RejectsPunctuationInName(t *testing.T) {
	target := newFakeTarget()
	resp := Dispatch(target, `service ../etc cmd="sleep 1"`, true)
	assert.Contains(t, resp, "ERROR:")
}

func TestParseVectorAndBool(t *testing.T) {
	v, ok := ParseVector(`[a, "b c", d]`)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b c", "d"}, v)

	b, err := ParseBool("yes")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = ParseBool("maybe")
	assert.Error(t, err)
}
