package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute vocabulary understood by the navigation layer.
const (
	// AttrRoute marks an anchor as an in-app navigation link.
	AttrRoute = "data-nav"
	// AttrRouteSkip opts an otherwise in-app anchor out of interception.
	AttrRouteSkip = "data-nav-skip"
	// AttrPaginate marks a container as a paginated list; its value is
	// unused, the companion data-* attributes carry the pager config.
	AttrPaginate = "data-paginate"
	// AttrReveals marks a disclosure control; its value is the id of the
	// hidden element the control reveals.
	AttrReveals = "data-reveals"
)

// Document is a headless, mutable view of the current page. It is the
// surface the router swaps fragments into and the pager appends items
// to, and it records presentation effects (title, scroll position,
// highlight, active link) so behavior is observable without a browser.
type Document struct {
	mu    sync.RWMutex
	doc   *goquery.Document
	title string

	activePath  string
	scrolledTo  string
	highlighted string
}

// Parse builds a Document from a full page of HTML.
func Parse(pageHTML string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	d := &Document{doc: doc}
	d.title = doc.Find("title").First().Text()
	return d, nil
}

// Title returns the current document title.
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

// SetTitle updates the document title.
func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = title
}

// Has reports whether an element with the given id exists.
func (d *Document) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.find(id).Length() > 0
}

// Mount replaces the contents of the element with the given id.
func (d *Document) Mount(id, fragmentHTML string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := d.find(id)
	if sel.Length() == 0 {
		return fmt.Errorf("mount point %q not found", id)
	}
	if err := checkFragment(fragmentHTML); err != nil {
		return err
	}
	sel.SetHtml(fragmentHTML)
	return nil
}

// checkFragment rejects a fragment with no element nodes before it is
// grafted into the document; bare text cannot carry the ids and
// attributes the navigation layer keys on.
func checkFragment(fragmentHTML string) error {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragmentHTML), body)
	if err != nil {
		return fmt.Errorf("malformed fragment: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return nil
		}
	}
	return fmt.Errorf("fragment contains no elements")
}

// Append adds a fragment as the last child of the element with the
// given id.
func (d *Document) Append(id, fragmentHTML string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := d.find(id)
	if sel.Length() == 0 {
		return fmt.Errorf("container %q not found", id)
	}
	if err := checkFragment(fragmentHTML); err != nil {
		return err
	}
	sel.AppendHtml(fragmentHTML)
	return nil
}

// AppendAfter inserts a fragment as the next sibling of the element
// with the given id.
func (d *Document) AppendAfter(id, fragmentHTML string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := d.find(id)
	if sel.Length() == 0 {
		return fmt.Errorf("element %q not found", id)
	}
	if err := checkFragment(fragmentHTML); err != nil {
		return err
	}
	sel.AfterHtml(fragmentHTML)
	return nil
}

// SetText replaces the text content of the element with the given id.
func (d *Document) SetText(id, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.find(id).SetText(text)
}

// Text returns the text content of the element with the given id.
func (d *Document) Text(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.find(id).Text()
}

// ChildCount returns the number of element children of the given
// container, or 0 if the container does not exist.
func (d *Document) ChildCount(id string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.find(id).Children().Length()
}

// IsVisible reports whether the element exists and neither it nor any
// ancestor carries the hidden attribute.
func (d *Document) IsVisible(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sel := d.find(id)
	if sel.Length() == 0 {
		return false
	}
	if _, hidden := sel.Attr("hidden"); hidden {
		return false
	}
	hiddenAncestor := false
	sel.Parents().Each(func(_ int, p *goquery.Selection) {
		if _, h := p.Attr("hidden"); h {
			hiddenAncestor = true
		}
	})
	return !hiddenAncestor
}

// Show removes the hidden attribute from the element with the given id.
func (d *Document) Show(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.find(id).RemoveAttr("hidden")
}

// Hide sets the hidden attribute on the element with the given id.
func (d *Document) Hide(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.find(id).SetAttr("hidden", "")
}

// Disclosure identifies a control that reveals a hidden element.
type Disclosure struct {
	// ID of the control element itself (may be empty).
	ID string
	// Target is the id of the element the control reveals.
	Target string
}

// Disclosures returns all disclosure controls in document order.
func (d *Document) Disclosures() []Disclosure {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Disclosure
	d.doc.Find("[" + AttrReveals + "]").Each(func(_ int, s *goquery.Selection) {
		target, _ := s.Attr(AttrReveals)
		id, _ := s.Attr("id")
		out = append(out, Disclosure{ID: id, Target: target})
	})
	return out
}

// Trigger activates a disclosure control, revealing its target.
func (d *Document) Trigger(disc Disclosure) {
	d.Show(disc.Target)
}

// ScrollTo records that the viewport was scrolled to the element with
// the given id. It is a no-op if the element does not exist.
func (d *Document) ScrollTo(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.find(id).Length() == 0 {
		return false
	}
	d.scrolledTo = id
	return true
}

// ScrolledTo returns the id last scrolled to, if any.
func (d *Document) ScrolledTo() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scrolledTo
}

// Highlight records a transient highlight on the element with the
// given id.
func (d *Document) Highlight(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.find(id).Length() > 0 {
		d.highlighted = id
	}
}

// Highlighted returns the id of the currently highlighted element.
func (d *Document) Highlighted() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.highlighted
}

// SetActiveLink marks anchors whose href equals path as active and
// clears the mark from all others.
func (d *Document) SetActiveLink(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.activePath = path
	d.doc.Find("a[" + AttrRoute + "]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == path {
			s.AddClass("active")
		} else {
			s.RemoveClass("active")
		}
	})
}

// ActiveLink returns the path of the currently highlighted navigation
// link.
func (d *Document) ActiveLink() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activePath
}

// Anchor describes a navigation-relevant view of an <a> element.
type Anchor struct {
	Href       string
	Routed     bool // carries the in-app route marker
	OptedOut   bool // explicitly excluded from interception
	NewSurface bool // targets a new tab/window
}

// AnchorByID returns the anchor with the given id, if present.
func (d *Document) AnchorByID(id string) (Anchor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sel := d.find(id)
	if sel.Length() == 0 || !sel.Is("a") {
		return Anchor{}, false
	}
	href, _ := sel.Attr("href")
	_, routed := sel.Attr(AttrRoute)
	_, optedOut := sel.Attr(AttrRouteSkip)
	target, _ := sel.Attr("target")
	return Anchor{
		Href:       href,
		Routed:     routed,
		OptedOut:   optedOut,
		NewSurface: target != "" && target != "_self",
	}, true
}

// PaginatedContainer describes a container discovered in the current
// content that asked for pagination.
type PaginatedContainer struct {
	ID           string
	DataKey      string
	APIURL       string
	EmptyMessage string
	PageSize     int
}

// PaginatedContainers scans the document for containers carrying the
// pagination marker and returns their declared configuration.
func (d *Document) PaginatedContainers() []PaginatedContainer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []PaginatedContainer
	d.doc.Find("[" + AttrPaginate + "]").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		if !ok {
			return
		}
		pc := PaginatedContainer{ID: id}
		pc.DataKey, _ = s.Attr("data-key")
		pc.APIURL, _ = s.Attr("data-api")
		pc.EmptyMessage, _ = s.Attr("data-empty")
		if raw, ok := s.Attr("data-page-size"); ok {
			fmt.Sscanf(raw, "%d", &pc.PageSize)
		}
		out = append(out, pc)
	})
	return out
}

// AttrRef is an element located by one of its attributes.
type AttrRef struct {
	ID    string
	Value string
}

// ElementsWithAttr returns, in document order, the id and attribute
// value of every element carrying the given attribute.
func (d *Document) ElementsWithAttr(attr string) []AttrRef {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []AttrRef
	d.doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		val, _ := s.Attr(attr)
		out = append(out, AttrRef{ID: id, Value: val})
	})
	return out
}

// SetAttr sets an attribute on the element with the given id.
func (d *Document) SetAttr(id, attr, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.find(id).SetAttr(attr, value)
}

// Attr returns an attribute of the element with the given id.
func (d *Document) Attr(id, attr string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.find(id).Attr(attr)
}

// HTML renders the current document, for inspection.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Html()
}

// find locates an element by id. Plain selection by attribute rather
// than a CSS #id selector so ids containing dots or colons still work.
func (d *Document) find(id string) *goquery.Selection {
	return d.doc.Find(fmt.Sprintf("[id=%q]", id))
}
