// Package foodinfo answers "tell me about this food" requests from the
// catalog, enriched with a published article when one exists.
package foodinfo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"meal-plan-assistant/internal/food"
	"meal-plan-assistant/internal/ghost"
)

// ErrNotFound is returned when the food is not in the catalog.
var ErrNotFound = errors.New("food not found")

const summaryLength = 400

// Catalog is the food lookup the service reads from.
type Catalog interface {
	Get(ctx context.Context, id string) (*food.Food, error)
	FindByName(ctx context.Context, name string) (*food.Food, error)
}

// Article is a short excerpt of a published post about a food.
type Article struct {
	Title   string
	Summary string
	URL     string
}

// Info describes one food.
type Info struct {
	Food    food.Food
	Article *Article
}

// Text renders the info as a chat message.
func (i Info) Text() string {
	f := i.Food
	var sb strings.Builder
	sb.WriteString(f.Name)
	if len(f.Categories) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(f.Categories, ", "))
	}
	sb.WriteString("\n")
	if f.EnergyPer100 > 0 {
		fmt.Fprintf(&sb, "%.0f kcal per 100 %s", f.EnergyPer100, f.Unit)
		if f.ServingSize > 0 {
			fmt.Fprintf(&sb, ", usual serving %.0f %s", f.ServingSize, f.Unit)
		}
		sb.WriteString("\n")
	}
	if f.Description != "" {
		sb.WriteString(f.Description + "\n")
	}
	if i.Article != nil {
		fmt.Fprintf(&sb, "\n%s\n%s", i.Article.Title, i.Article.Summary)
		if i.Article.URL != "" {
			sb.WriteString("\n" + i.Article.URL)
		}
	}
	return strings.TrimSpace(sb.String())
}

// Service looks foods up. The article client is optional.
type Service struct {
	catalog Catalog
	ghost   ghost.Client
}

// NewService creates a Service. ghostClient may be nil.
func NewService(catalog Catalog, ghostClient ghost.Client) *Service {
	return &Service{catalog: catalog, ghost: ghostClient}
}

// ByID describes a catalog food.
func (s *Service) ByID(ctx context.Context, id string) (Info, error) {
	f, err := s.catalog.Get(ctx, id)
	if err != nil {
		return Info{}, err
	}
	if f == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.describe(ctx, *f), nil
}

// ByName describes the catalog food best matching name.
func (s *Service) ByName(ctx context.Context, name string) (Info, error) {
	f, err := s.catalog.FindByName(ctx, name)
	if err != nil {
		return Info{}, err
	}
	if f == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.describe(ctx, *f), nil
}

// describe attaches an article when one can be found. Article failures are
// logged and never fail the lookup.
func (s *Service) describe(ctx context.Context, f food.Food) Info {
	info := Info{Food: f}
	if s.ghost == nil {
		return info
	}

	tag := f.ArticleTag
	if tag == "" {
		tag = slug(f.Name)
	}
	posts, err := s.ghost.FetchPosts(ctx, "tag:"+tag, 1)
	if err != nil {
		log.Printf("foodinfo: failed to fetch article for %s: %v", f.Name, err)
		return info
	}
	if len(posts) == 0 {
		return info
	}

	post := posts[0]
	summary := post.Excerpt
	if summary == "" {
		summary, err = Summarize(post.HTML, summaryLength)
		if err != nil {
			log.Printf("foodinfo: failed to summarize article %s: %v", post.ID, err)
			return info
		}
	}
	info.Article = &Article{Title: post.Title, Summary: summary, URL: post.URL}
	return info
}

// Summarize extracts readable paragraph text from article HTML and cuts it to
// at most maxChars, ending on a word boundary.
func Summarize(html string, maxChars int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	// Remove noise
	doc.Find("script, style, iframe, figure, nav, footer, .ads").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	doc.Find("p, li").Each(func(i int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		parts = append(parts, strings.Join(strings.Fields(doc.Text()), " "))
	}

	text := strings.Join(parts, " ")
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, nil
	}
	cut := string(runes[:maxChars])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "…", nil
}

func slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
