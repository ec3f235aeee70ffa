package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Parent identifies the container of a page.
type Parent struct {
	Type         string `json:"type,omitempty"`
	DatabaseID   string `json:"database_id,omitempty"`
	DataSourceID string `json:"data_source_id,omitempty"`
	PageID       string `json:"page_id,omitempty"`
	ID           string `json:"id,omitempty"`
}

// Database returns the normalized owning database id, or "".
func (p Parent) Database() string {
	if p.DatabaseID != "" {
		return NormalizeID(p.DatabaseID)
	}
	if p.Type == "database" && p.ID != "" {
		return NormalizeID(p.ID)
	}
	return ""
}

// Page is a database row, surfaced to users as a card.
type Page struct {
	Object     string                   `json:"object,omitempty"`
	ID         string                   `json:"id"`
	URL        string                   `json:"url,omitempty"`
	Archived   bool                     `json:"archived,omitempty"`
	Parent     Parent                   `json:"parent"`
	Properties map[string]PropertyValue `json:"properties"`
}

// Title returns the display value of the page's title property.
func (p *Page) Title() string {
	for _, prop := range p.Properties {
		if prop.Type == TypeTitle {
			return prop.Display()
		}
	}
	return ""
}

// PropertyNames returns the page's property names sorted alphabetically.
func (p *Page) PropertyNames() []string {
	names := make([]string, 0, len(p.Properties))
	for name := range p.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type queryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// pageSize is the largest page the query endpoint accepts.
const pageSize = 100

// QueryDatabase returns pages matching filter (nil for all), following
// cursors until limit pages are collected. limit <= 0 means no limit.
func (c *Client) QueryDatabase(ctx context.Context, databaseURL string, filter map[string]any, limit int) ([]Page, error) {
	databaseID, err := ExtractDatabaseID(databaseURL)
	if err != nil {
		return nil, err
	}

	var (
		pages  []Page
		cursor string
	)
	for {
		body := map[string]any{"page_size": pageSize}
		if filter != nil {
			body["filter"] = filter
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp queryResponse
		if err := c.do(ctx, http.MethodPost, "/v1/databases/"+databaseID+"/query", body, &resp); err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)

		if limit > 0 && len(pages) >= limit {
			return pages[:limit], nil
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return pages, nil
		}
		cursor = *resp.NextCursor
	}
}

// CountPages returns the number of cards in the database.
func (c *Client) CountPages(ctx context.Context, databaseURL string) (int, error) {
	pages, err := c.QueryDatabase(ctx, databaseURL, nil, 0)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// SearchInDatabase finds pages whose property matches term. The filter
// operator depends on the property type.
func (c *Client) SearchInDatabase(ctx context.Context, databaseURL, term, propertyName, propertyType string) ([]Page, error) {
	term = strings.TrimSpace(term)

	var condition map[string]any
	switch propertyType {
	case TypeTitle, TypeRichText, TypeURL, TypeEmail, TypePhoneNumber:
		condition = map[string]any{"contains": term}
	case TypeStatus, TypeSelect:
		condition = map[string]any{"equals": term}
	case TypeMultiSelect:
		condition = map[string]any{"contains": term}
	case TypePeople:
		userID, err := c.SearchIDPerson(ctx, term)
		if err != nil {
			return nil, err
		}
		if userID == "" {
			return nil, nil
		}
		condition = map[string]any{"contains": userID}
	case TypeNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(term, ",", "."), 64)
		if err != nil {
			return nil, &APIError{Message: fmt.Sprintf("%q is not a number", term)}
		}
		condition = map[string]any{"equals": n}
	case TypeCheckbox:
		condition = map[string]any{"equals": parseBool(term)}
	case TypeDate:
		iso, ok := parseInputDate(term)
		if !ok {
			return nil, &APIError{Message: fmt.Sprintf("%q is not a date (use DD/MM/YYYY)", term)}
		}
		condition = map[string]any{"equals": iso}
	default:
		return nil, &APIError{Message: fmt.Sprintf("property type %s cannot be searched", propertyType)}
	}

	filter := map[string]any{
		"property":   propertyName,
		propertyType: condition,
	}
	return c.QueryDatabase(ctx, databaseURL, filter, 0)
}

// User is a workspace member.
type User struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Person *PersonDetail `json:"person,omitempty"`
}

type usersResponse struct {
	Results    []User  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// ListUsers returns every workspace user.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var (
		users  []User
		cursor string
	)
	for {
		path := "/v1/users?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + url.QueryEscape(cursor)
		}

		var resp usersResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		users = append(users, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return users, nil
		}
		cursor = *resp.NextCursor
	}
}

// SearchIDPerson resolves a user by case-insensitive partial name or exact
// email. It returns "" when nobody matches.
func (c *Client) SearchIDPerson(ctx context.Context, name string) (string, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	return MatchUser(users, name), nil
}

// MatchUser applies SearchIDPerson's matching to an already loaded user list.
func MatchUser(users []User, name string) string {
	term := strings.ToLower(strings.TrimSpace(name))
	if term == "" {
		return ""
	}
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), term) {
			return u.ID
		}
		if u.Person != nil && strings.ToLower(u.Person.Email) == term {
			return u.ID
		}
	}
	return ""
}

// GetPage fetches a single page.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+NormalizeID(pageID), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// BuildPageProperties converts user input into a write payload. The title
// property receives title; values maps property names to raw text. People
// are resolved to user ids, and names nobody matches are dropped.
func (c *Client) BuildPageProperties(ctx context.Context, schema []PropertySchema, title string, values map[string]string) (map[string]PropertyValue, error) {
	props := make(map[string]PropertyValue, len(values)+1)

	var users []User
	for _, prop := range schema {
		raw, ok := values[prop.Name]
		if prop.Type == TypeTitle {
			if title != "" {
				raw, ok = title, true
			}
		}
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}

		if prop.Type == TypePeople {
			if users == nil {
				var err error
				if users, err = c.ListUsers(ctx); err != nil {
					return nil, err
				}
			}
			var ids []string
			for _, name := range splitList(raw) {
				id := MatchUser(users, name)
				if id == "" {
					c.logger.Warn("no notion user matches name", zap.String("property", prop.Name))
					continue
				}
				ids = append(ids, id)
			}
			if len(ids) > 0 {
				props[prop.Name] = PeopleValue(ids)
			}
			continue
		}

		value, err := ValueFor(prop.Type, raw)
		if err != nil {
			return nil, &APIError{Message: fmt.Sprintf("%s: %v", prop.Name, err)}
		}
		props[prop.Name] = value
	}
	return props, nil
}

// ValueFor builds a write value of the given type from raw text.
func ValueFor(propertyType, raw string) (PropertyValue, error) {
	raw = strings.TrimSpace(raw)
	switch propertyType {
	case TypeTitle:
		return PropertyValue{Title: []RichText{textRun(raw)}}, nil
	case TypeRichText:
		return PropertyValue{RichText: []RichText{textRun(raw)}}, nil
	case TypeStatus:
		return PropertyValue{Status: &SelectOption{Name: raw}}, nil
	case TypeSelect:
		return PropertyValue{Select: &SelectOption{Name: raw}}, nil
	case TypeMultiSelect:
		var opts []SelectOption
		for _, name := range splitList(raw) {
			opts = append(opts, SelectOption{Name: name})
		}
		return PropertyValue{MultiSelect: opts}, nil
	case TypeURL:
		return PropertyValue{URL: &raw}, nil
	case TypeEmail:
		return PropertyValue{Email: &raw}, nil
	case TypePhoneNumber:
		return PropertyValue{PhoneNumber: &raw}, nil
	case TypeNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return PropertyValue{}, fmt.Errorf("%q is not a number", raw)
		}
		return PropertyValue{Number: &n}, nil
	case TypeCheckbox:
		b := parseBool(raw)
		return PropertyValue{Checkbox: &b}, nil
	case TypeDate:
		iso, ok := parseInputDate(raw)
		if !ok {
			return PropertyValue{}, fmt.Errorf("%q is not a date (use DD/MM/YYYY)", raw)
		}
		return PropertyValue{Date: &DateValue{Start: iso}}, nil
	default:
		return PropertyValue{}, fmt.Errorf("property type %s cannot be written", propertyType)
	}
}

// PeopleValue builds a people write value from user ids.
func PeopleValue(userIDs []string) PropertyValue {
	people := make([]Person, 0, len(userIDs))
	for _, id := range userIDs {
		people = append(people, Person{Object: "user", ID: id})
	}
	return PropertyValue{People: people}
}

// InsertIntoDatabase creates a page with optional body blocks.
func (c *Client) InsertIntoDatabase(ctx context.Context, databaseURL string, props map[string]PropertyValue, children []Block) (*Page, error) {
	databaseID, err := ExtractDatabaseID(databaseURL)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": props,
	}
	if len(children) > 0 {
		body["children"] = children
	}

	var page Page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &page); err != nil {
		return nil, err
	}
	c.logger.Info("card created", zap.String("page_id", page.ID), zap.String("database_id", databaseID))
	return &page, nil
}

// UpdatePage patches the given properties.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props map[string]PropertyValue) (*Page, error) {
	var page Page
	body := map[string]any{"properties": props}
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+NormalizeID(pageID), body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DeletePage archives the page. Notion has no hard delete.
func (c *Client) DeletePage(ctx context.Context, pageID string) error {
	body := map[string]any{"archived": true}
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+NormalizeID(pageID), body, nil); err != nil {
		return err
	}
	c.logger.Info("card archived", zap.String("page_id", pageID))
	return nil
}

// maxBlocksPerRequest is the append endpoint's per-call limit.
const maxBlocksPerRequest = 100

// AppendBlocks adds children to a page body in batches.
func (c *Client) AppendBlocks(ctx context.Context, pageID string, blocks []Block) error {
	for start := 0; start < len(blocks); start += maxBlocksPerRequest {
		end := start + maxBlocksPerRequest
		if end > len(blocks) {
			end = len(blocks)
		}
		body := map[string]any{"children": blocks[start:end]}
		if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+NormalizeID(pageID)+"/children", body, nil); err != nil {
			return err
		}
	}
	return nil
}

func textRun(s string) RichText {
	return RichText{Type: "text", Text: &TextContent{Content: s}}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "sim", "s", "1", "x":
		return true
	}
	return false
}

// parseInputDate accepts DD/MM/YYYY or YYYY-MM-DD and returns YYYY-MM-DD.
func parseInputDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{displayDateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
