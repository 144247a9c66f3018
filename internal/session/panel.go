package session

// Scroll offsets (in CSS pixels) driving the filter panel.
const (
	collapseScrollY       = 10
	floatingToggleScrollY = 300
)

// Panel is the collapsible filter panel.
//
// AutoCollapse decides whether scrolling may close the panel. The user
// opening the panel from the floating button disables it; the header toggle
// sets it to whether the panel was open before the click.
type Panel struct {
	FiltersOpen        bool
	AutoCollapse       bool
	ShowFloatingToggle bool
}

// PanelView is the panel part of the view-model.
type PanelView struct {
	FiltersOpen        bool `json:"filtersOpen"`
	ShowFloatingButton bool `json:"showFloatingButton"`
}

func newPanel() Panel {
	return Panel{FiltersOpen: true, AutoCollapse: true}
}

func (p *Panel) scroll(y float64) {
	if p.FiltersOpen && y > collapseScrollY && p.AutoCollapse {
		p.FiltersOpen = false
	}
	p.ShowFloatingToggle = y > floatingToggleScrollY
}

func (p *Panel) toggle() {
	p.AutoCollapse = p.FiltersOpen
	p.FiltersOpen = !p.FiltersOpen
}

func (p *Panel) openFromFloating() {
	p.AutoCollapse = false
	p.FiltersOpen = true
}

func (p Panel) view() PanelView {
	return PanelView{
		FiltersOpen:        p.FiltersOpen,
		ShowFloatingButton: p.ShowFloatingToggle && !p.FiltersOpen,
	}
}

// Scroll reports the page scroll offset.
func (s *Session) Scroll(y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panel.scroll(y)
}

// TogglePanel flips the panel from its header button.
func (s *Session) TogglePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panel.toggle()
}

// OpenFromFloating opens the panel from the floating button.
func (s *Session) OpenFromFloating() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panel.openFromFloating()
}

// Panel returns a copy of the panel state.
func (s *Session) Panel() Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panel
}
