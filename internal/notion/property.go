package notion

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Property types
const (
	TypeTitle          = "title"
	TypeRichText       = "rich_text"
	TypeStatus         = "status"
	TypeSelect         = "select"
	TypeMultiSelect    = "multi_select"
	TypePeople         = "people"
	TypeDate           = "date"
	TypeURL            = "url"
	TypeNumber         = "number"
	TypeCheckbox       = "checkbox"
	TypeEmail          = "email"
	TypePhoneNumber    = "phone_number"
	TypeRollup         = "rollup"
	TypeFormula        = "formula"
	TypeCreatedBy      = "created_by"
	TypeCreatedTime    = "created_time"
	TypeLastEditedBy   = "last_edited_by"
	TypeLastEditedTime = "last_edited_time"
)

// displayDateLayout renders dates as DD/MM/YYYY.
const displayDateLayout = "02/01/2006"

type TextContent struct {
	Content string `json:"content"`
}

type RichText struct {
	Type      string       `json:"type,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
}

func (r RichText) String() string {
	if r.PlainText != "" {
		return r.PlainText
	}
	if r.Text != nil {
		return r.Text.Content
	}
	return ""
}

type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type PersonDetail struct {
	Email string `json:"email,omitempty"`
}

type Person struct {
	Object string        `json:"object,omitempty"`
	ID     string        `json:"id"`
	Name   string        `json:"name,omitempty"`
	Type   string        `json:"type,omitempty"`
	Person *PersonDetail `json:"person,omitempty"`
}

type DateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

// PropertyValue is a tagged union over Notion page property values. Type
// names the populated variant. Values decoded from Notion carry Type; values
// built for writes leave it empty, since the API infers it from the field.
type PropertyValue struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type,omitempty"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Status      *SelectOption  `json:"status,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	People      []Person       `json:"people,omitempty"`
	Date        *DateValue     `json:"date,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	Checkbox    *bool          `json:"checkbox,omitempty"`
	Email       *string        `json:"email,omitempty"`
	PhoneNumber *string        `json:"phone_number,omitempty"`
}

// UnmarshalJSON decodes leniently: only the variant named by "type" is read,
// and a malformed variant leaves the value empty instead of failing the
// whole page.
func (p *PropertyValue) UnmarshalJSON(data []byte) error {
	*p = PropertyValue{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	_ = json.Unmarshal(raw["id"], &p.ID)
	_ = json.Unmarshal(raw["type"], &p.Type)

	field, ok := raw[p.Type]
	if !ok {
		return nil
	}

	var err error
	switch p.Type {
	case TypeTitle:
		err = json.Unmarshal(field, &p.Title)
	case TypeRichText:
		err = json.Unmarshal(field, &p.RichText)
	case TypeStatus:
		err = json.Unmarshal(field, &p.Status)
	case TypeSelect:
		err = json.Unmarshal(field, &p.Select)
	case TypeMultiSelect:
		err = json.Unmarshal(field, &p.MultiSelect)
	case TypePeople:
		err = json.Unmarshal(field, &p.People)
	case TypeDate:
		err = json.Unmarshal(field, &p.Date)
	case TypeURL:
		err = json.Unmarshal(field, &p.URL)
	case TypeNumber:
		err = json.Unmarshal(field, &p.Number)
	case TypeCheckbox:
		err = json.Unmarshal(field, &p.Checkbox)
	case TypeEmail:
		err = json.Unmarshal(field, &p.Email)
	case TypePhoneNumber:
		err = json.Unmarshal(field, &p.PhoneNumber)
	}
	if err != nil {
		typ, id := p.Type, p.ID
		*p = PropertyValue{ID: id, Type: typ}
	}
	return nil
}

// Display extracts the plain value shown to users and compared by rules.
// Unknown or empty variants yield "".
func (p PropertyValue) Display() string {
	switch p.Type {
	case TypeTitle:
		return joinRichText(p.Title)
	case TypeRichText:
		return joinRichText(p.RichText)
	case TypeStatus:
		return optionName(p.Status)
	case TypeSelect:
		return optionName(p.Select)
	case TypeMultiSelect:
		names := make([]string, 0, len(p.MultiSelect))
		for _, opt := range p.MultiSelect {
			names = append(names, opt.Name)
		}
		return strings.Join(names, ", ")
	case TypePeople:
		names := make([]string, 0, len(p.People))
		for _, person := range p.People {
			names = append(names, person.Name)
		}
		return strings.Join(names, ", ")
	case TypeDate:
		if p.Date == nil {
			return ""
		}
		return formatDate(p.Date.Start)
	case TypeURL:
		return deref(p.URL)
	case TypeNumber:
		if p.Number == nil {
			return ""
		}
		return strconv.FormatFloat(*p.Number, 'f', -1, 64)
	case TypeCheckbox:
		if p.Checkbox == nil {
			return ""
		}
		return strconv.FormatBool(*p.Checkbox)
	case TypeEmail:
		return deref(p.Email)
	case TypePhoneNumber:
		return deref(p.PhoneNumber)
	default:
		return ""
	}
}

// PersonNames returns the names of a people property, one per person.
func (p PropertyValue) PersonNames() []string {
	if p.Type != TypePeople {
		return nil
	}
	names := make([]string, 0, len(p.People))
	for _, person := range p.People {
		if person.Name != "" {
			names = append(names, person.Name)
		}
	}
	return names
}

func joinRichText(parts []RichText) string {
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(part.String())
	}
	return sb.String()
}

func optionName(opt *SelectOption) string {
	if opt == nil {
		return ""
	}
	return opt.Name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(start string) string {
	if len(start) < len("2006-01-02") {
		return ""
	}
	t, err := time.Parse("2006-01-02", start[:10])
	if err != nil {
		return ""
	}
	return t.Format(displayDateLayout)
}
