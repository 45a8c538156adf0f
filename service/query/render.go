package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/db"
	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TimeLayout is the layout of rendered timestamps.
const TimeLayout = "2006-01-02 15:04:05 MST"

// Reference-currency thresholds that raise the emphasis of pretty output.
const (
	boldThresholdUSD      = 1_000_000
	underlineThresholdUSD = 20_000_000
)

// unknownOwner is displayed in place of an empty owner.
const unknownOwner = "unknown"

// Emphasis is the styling intensity of a USD amount in pretty output.
type Emphasis int

const (
	EmphasisPlain Emphasis = iota
	EmphasisBold
	EmphasisBoldUnderline
)

// EmphasisFor returns the styling bucket of a USD amount.
func EmphasisFor(usd float64) Emphasis {
	switch {
	case usd < boldThresholdUSD:
		return EmphasisPlain
	case usd < underlineThresholdUSD:
		return EmphasisBold
	default:
		return EmphasisBoldUnderline
	}
}

// Renderer turns rows into text.
type Renderer struct {
	loc     *time.Location
	printer *message.Printer

	timeColor   *color.Color
	amountColor *color.Color
	symbolColor *color.Color
	ownerColor  *color.Color
	burnColor   *color.Color
	usdColors   map[Emphasis]*color.Color
}

// NewRenderer creates a Renderer that prints timestamps in loc.
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	r := &Renderer{
		loc:         loc,
		printer:     message.NewPrinter(language.English),
		timeColor:   color.New(color.FgYellow),
		amountColor: color.New(color.FgWhite),
		symbolColor: color.New(color.FgRed),
		ownerColor:  color.New(color.FgBlue),
		burnColor:   color.New(color.FgRed),
		usdColors: map[Emphasis]*color.Color{
			EmphasisPlain:         color.New(color.FgCyan),
			EmphasisBold:          color.New(color.FgCyan, color.Bold),
			EmphasisBoldUnderline: color.New(color.FgCyan, color.Bold, color.Underline),
		},
	}
	// Pretty output is colored even when stdout is not a terminal.
	for _, c := range r.colors() {
		c.EnableColor()
	}
	return r
}

func (r *Renderer) colors() []*color.Color {
	out := []*color.Color{r.timeColor, r.amountColor, r.symbolColor, r.ownerColor, r.burnColor}
	for _, c := range r.usdColors {
		out = append(out, c)
	}
	return out
}

// Render formats rows in the given mode.
func (r *Renderer) Render(rows []db.Row, mode Mode) Result {
	res := emptyResult(mode)
	switch mode {
	case ModeTable:
		res.Rows = append(res.Rows, rows...)
	case ModeRecords:
		for _, row := range rows {
			res.Records = append(res.Records, TextRecord{
				Timestamp: r.timestamp(row, false),
				Text:      r.amount(row, false) + " " + r.action(row, false) + ".",
			})
		}
	case ModeText, ModePretty:
		pretty := mode == ModePretty
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, r.Line(row, pretty))
		}
		res.Text = strings.Join(lines, "\n")
	}
	return res
}

// Line renders one row:
// "<time> <amount> <SYMBOL> (<usd> USD) <action>."
func (r *Renderer) Line(row db.Row, pretty bool) string {
	return r.timestamp(row, pretty) + " " + r.amount(row, pretty) + " " + r.action(row, pretty) + "."
}

// FormatUSD formats v with two decimals and thousands separators.
func (r *Renderer) FormatUSD(v float64) string {
	return r.printer.Sprintf("%.2f", v)
}

func (r *Renderer) timestamp(row db.Row, pretty bool) string {
	s := time.Unix(row.Timestamp, 0).In(r.loc).Format(TimeLayout)
	if pretty {
		return r.timeColor.Sprint(s)
	}
	return s
}

func (r *Renderer) amount(row db.Row, pretty bool) string {
	amount := strconv.FormatFloat(row.Amount, 'f', 2, 64)
	usd := "(" + r.FormatUSD(row.AmountUSD) + " USD)"
	if !pretty {
		return amount + " " + row.Symbol + " " + usd
	}
	return r.amountColor.Sprint(amount) + " " +
		r.symbolColor.Sprint(row.Symbol) + " " +
		r.usdColors[EmphasisFor(row.AmountUSD)].Sprint(usd)
}

func (r *Renderer) action(row db.Row, pretty bool) string {
	from := displayOwner(row.FromOwner)
	to := displayOwner(row.ToOwner)
	if !pretty {
		return verb(row.Type) + " from " + from + " to " + to
	}

	from = r.ownerColor.Sprint(from)
	to = r.ownerColor.Sprint(to)
	if row.Type == "burn" {
		return r.burnColor.Sprint("burned") + " at " + from
	}
	return verb(row.Type) + " from " + from + " to " + to
}

// verb names a transaction type in past tense where it has a fixed wording.
func verb(txType string) string {
	if txType == "transfer" {
		return "transferred"
	}
	return txType
}

func displayOwner(owner string) string {
	if owner == "" {
		return unknownOwner
	}
	return owner
}
