// internal/widget/artifact.go
package widget

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/engine"
)

// CopyResult describes a copy-code action.
type CopyResult struct {
	// Artifact is the generated code that was on the page when copying.
	Artifact string
	// Clipboard is what the clipboard held afterwards, when readable.
	Clipboard string
	// Dialog is the native prompt the page raised, if any. It was accepted.
	Dialog *browser.DialogEvent
	// Degraded is set when the clipboard could not be read and only the
	// artifact itself was checked.
	Degraded bool
}

// GeneratePreview asks the builder for a preview and waits until a visible
// artifact holds embed code. The artifact is returned even when the wait
// times out, in which case it is usually empty.
func (p *Page) GeneratePreview(ctx context.Context) (string, error) {
	button := engine.Target{Label: browser.Containing(p.labels.Generate), Relation: engine.RelationSelf, Kind: engine.KindButton}
	if _, err := p.eng.Executor.Execute(ctx, "generate preview", []engine.Strategy{
		engine.Click("click generate button", button),
		engine.Click("force generate button", button).Forced(),
	}); err != nil {
		return "", err
	}

	code, err := p.eng.Verifier.Until(ctx, "generated code appears", p.eng.Config().ArtifactTimeout, func(ctx context.Context) (bool, string, error) {
		return p.artifact(ctx, true)
	})
	if err != nil {
		return code, err
	}
	p.logger.Info("Preview generated.", zap.Int("code_length", len(code)))
	return code, nil
}

// GeneratedCode returns the current embed code, or "" when there is none.
func (p *Page) GeneratedCode(ctx context.Context) (string, error) {
	_, code, err := p.artifact(ctx, false)
	return code, err
}

// artifact finds the first artifact element whose content matches the embed
// tokens. With visible set, hidden elements are ignored.
func (p *Page) artifact(ctx context.Context, visible bool) (bool, string, error) {
	hs, err := p.drv.QueryAll(ctx, "", p.sel.Artifact)
	if err != nil {
		return false, "", err
	}
	for _, h := range hs {
		st, err := p.drv.Describe(ctx, h)
		if err != nil {
			return false, "", err
		}
		if !st.Found || (visible && !st.Visible) {
			continue
		}
		content := st.Value
		if content == "" {
			content = st.Text
		}
		if p.artifactRe.MatchString(content) {
			return true, content, nil
		}
	}
	return false, "", nil
}

// CopyCode presses the copy button and checks that the clipboard received
// the generated code. A native dialog raised on the way is accepted. When
// the clipboard cannot be read in this environment the result is Degraded
// and only the artifact's presence has been checked.
func (p *Page) CopyCode(ctx context.Context) (CopyResult, error) {
	const intent = "copy generated code"
	var res CopyResult

	code, err := p.GeneratedCode(ctx)
	if err != nil {
		return res, err
	}
	if code == "" {
		return res, &engine.Failure{Kind: engine.KindNotFound, Intent: intent, Err: errors.New("no generated code to copy")}
	}
	res.Artifact = code

	dctx, cancel := context.WithTimeout(ctx, p.eng.Config().DialogWait)
	defer cancel()
	dialogs, err := p.drv.InterceptDialog(dctx, true)
	if err != nil {
		return res, err
	}

	button := engine.Target{Label: browser.Containing(p.labels.Copy), Relation: engine.RelationSelf, Kind: engine.KindButton}
	if _, err := p.eng.Executor.Execute(ctx, intent, []engine.Strategy{
		engine.Click("click copy button", button),
		engine.Click("force copy button", button).Forced(),
	}); err != nil {
		return res, err
	}

	// The channel closes when dctx ends without a dialog. The interceptor
	// answers the dialog on its own, so reading it never gates the clipboard.
	takeDialog := func(wait bool) {
		if res.Dialog != nil {
			return
		}
		var (
			ev browser.DialogEvent
			ok bool
		)
		if wait {
			ev, ok = <-dialogs
		} else {
			select {
			case ev, ok = <-dialogs:
			default:
			}
		}
		if ok {
			res.Dialog = &ev
			p.logger.Debug("Copy dialog accepted.", zap.String("type", ev.Type), zap.String("message", ev.Message))
		}
	}

	unavailable := false
	clip, err := p.eng.Verifier.Until(ctx, intent, p.eng.Config().ClipboardTimeout, func(ctx context.Context) (bool, string, error) {
		takeDialog(false)
		text, err := p.drv.ReadClipboard(ctx)
		if errors.Is(err, browser.ErrClipboardUnavailable) {
			unavailable = true
			return true, "", nil
		}
		if err != nil {
			return false, "", err
		}
		return strings.TrimSpace(text) == strings.TrimSpace(code), text, nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	// A matching clipboard settles the copy; otherwise the dialog is the
	// only remaining sign of what the page did.
	takeDialog(unavailable || err != nil)
	if unavailable {
		res.Degraded = true
		p.logger.Warn("Clipboard unavailable; verified the generated code only.",
			zap.Stringer("kind", engine.KindExternalUnavailable))
		return res, nil
	}
	res.Clipboard = clip
	return res, err
}
