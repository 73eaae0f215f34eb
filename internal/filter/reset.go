package filter

import (
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// OnToggle handles the enable switch. Turning off sweeps every treatment.
func (e *Engine) OnToggle(t types.Toggle) {
	if t.Enabled {
		return
	}
	n := e.Reset()
	e.log.Info("filtering disabled", "restored", n)
}

// Reset restores every treated post on the page and removes every reveal
// control. Posts are found by class, whichever thread they came from.
// It returns the number of posts restored.
func (e *Engine) Reset() int {
	treated := e.doc.Query("." + ClassTreated)
	for _, post := range treated {
		e.strip(post)
		e.presenter.Clear(post)
	}
	for _, controls := range e.doc.Query("." + ClassControls) {
		e.dropControls(controls)
		e.doc.Remove(controls)
	}
	clear(e.controls)
	return len(treated)
}
