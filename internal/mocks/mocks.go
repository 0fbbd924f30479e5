// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Widget() config.WidgetConfig {
	args := m.Called()
	return args.Get(0).(config.WidgetConfig)
}

func (m *MockConfig) Runner() config.RunnerConfig {
	args := m.Called()
	return args.Get(0).(config.RunnerConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserDriver(driver string) { m.Called(driver) }
func (m *MockConfig) SetBrowserHeadless(headless bool) { m.Called(headless) }
func (m *MockConfig) SetWidgetBaseURL(u string) { m.Called(u) }
func (m *MockConfig) SetRunnerConcurrency(n int) { m.Called(n) }
func (m *MockConfig) SetRunnerRetries(n int) { m.Called(n) }
func (m *MockConfig) SetRunnerScenarios(names []string) { m.Called(names) }
func (m *MockConfig) SetReportFormats(formats []string) { m.Called(formats) }
func (m *MockConfig) SetReportOutputDir(dir string) { m.Called(dir) }

// NewDefaultMockConfig returns a MockConfig whose getters answer with the
// defaults from config.NewDefaultConfig. Setters still need expectations.
func NewDefaultMockConfig() *MockConfig {
	cfg := config.NewDefaultConfig()
	m := new(MockConfig)
	m.On("Logger").Return(cfg.Logger()).Maybe()
	m.On("Browser").Return(cfg.Browser()).Maybe()
	m.On("Engine").Return(cfg.Engine()).Maybe()
	m.On("Widget").Return(cfg.Widget()).Maybe()
	m.On("Runner").Return(cfg.Runner()).Maybe()
	m.On("Report").Return(cfg.Report()).Maybe()
	m.On("Store").Return(cfg.Store()).Maybe()
	return m
}

// -- Browser Mocks --

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) QueryAll(ctx context.Context, scope browser.Handle, css string) ([]browser.Handle, error) {
	args := m.Called(ctx, scope, css)
	hs, _ := args.Get(0).([]browser.Handle)
	return hs, args.Error(1)
}

func (m *MockDriver) QueryText(ctx context.Context, scope browser.Handle, tm browser.TextMatch) ([]browser.Handle, error) {
	args := m.Called(ctx, scope, tm)
	hs, _ := args.Get(0).([]browser.Handle)
	return hs, args.Error(1)
}

func (m *MockDriver) Ancestor(ctx context.Context, h browser.Handle, hops int) (browser.Handle, error) {
	args := m.Called(ctx, h, hops)
	return args.Get(0).(browser.Handle), args.Error(1)
}

func (m *MockDriver) Closest(ctx context.Context, h browser.Handle, css string) (browser.Handle, error) {
	args := m.Called(ctx, h, css)
	return args.Get(0).(browser.Handle), args.Error(1)
}

func (m *MockDriver) Describe(ctx context.Context, h browser.Handle) (browser.ElementState, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(browser.ElementState), args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, h browser.Handle, opts browser.ActionOptions) error {
	return m.Called(ctx, h, opts).Error(0)
}

func (m *MockDriver) SetChecked(ctx context.Context, h browser.Handle, checked bool, opts browser.ActionOptions) error {
	return m.Called(ctx, h, checked, opts).Error(0)
}

func (m *MockDriver) Fill(ctx context.Context, h browser.Handle, value string, opts browser.ActionOptions) error {
	return m.Called(ctx, h, value, opts).Error(0)
}

func (m *MockDriver) SelectOption(ctx context.Context, h browser.Handle, opt browser.OptionRef) error {
	return m.Called(ctx, h, opt).Error(0)
}

func (m *MockDriver) ForceChecked(ctx context.Context, h browser.Handle, checked bool) error {
	return m.Called(ctx, h, checked).Error(0)
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) BodyText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) GrantClipboard(ctx context.Context, origin string) error {
	return m.Called(ctx, origin).Error(0)
}

func (m *MockDriver) ReadClipboard(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) InterceptDialog(ctx context.Context, accept bool) (<-chan browser.DialogEvent, error) {
	args := m.Called(ctx, accept)
	ch, _ := args.Get(0).(<-chan browser.DialogEvent)
	return ch, args.Error(1)
}

func (m *MockDriver) Close() error {
	return m.Called().Error(0)
}

// MockFactory mocks browser.Factory.
type MockFactory struct {
	mock.Mock
}

func (m *MockFactory) NewPage(ctx context.Context) (browser.Driver, error) {
	args := m.Called(ctx)
	d, _ := args.Get(0).(browser.Driver)
	return d, args.Error(1)
}

func (m *MockFactory) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var (
	_ config.Interface = (*MockConfig)(nil)
	_ browser.Driver   = (*MockDriver)(nil)
	_ browser.Factory  = (*MockFactory)(nil)
)
