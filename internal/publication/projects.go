package publication

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"meetsync/internal/textutil"
)

// Project is a tag candidate with the keywords that identify it.
type Project struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type projectsFile struct {
	Projects []Project `yaml:"projects"`
}

// ProjectsFromRows converts sheet rows of (name, comma separated keywords).
func ProjectsFromRows(rows [][]string) []Project {
	projects := make([]Project, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		project := Project{Name: strings.TrimSpace(row[0])}
		if len(row) > 1 {
			project.Keywords = textutil.SplitKeywords(row[1])
		}
		projects = append(projects, project)
	}
	return projects
}

// LoadProjectsFile reads a YAML project list. A missing file yields no
// projects and no error.
func LoadProjectsFile(path string) ([]Project, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read projects file: %w", err)
	}
	var parsed projectsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse projects file %s: %w", path, err)
	}
	out := make([]Project, 0, len(parsed.Projects))
	for _, project := range parsed.Projects {
		project.Name = strings.TrimSpace(project.Name)
		if project.Name == "" {
			continue
		}
		keywords := project.Keywords[:0]
		for _, keyword := range project.Keywords {
			if keyword = strings.TrimSpace(keyword); keyword != "" {
				keywords = append(keywords, keyword)
			}
		}
		project.Keywords = keywords
		out = append(out, project)
	}
	return out, nil
}

// MergeProjects combines project lists. The first list wins for a name that
// appears twice; keywords of later duplicates are appended.
func MergeProjects(lists ...[]Project) []Project {
	var merged []Project
	index := make(map[string]int)
	for _, list := range lists {
		for _, project := range list {
			key := strings.ToLower(project.Name)
			if at, ok := index[key]; ok {
				merged[at].Keywords = appendMissing(merged[at].Keywords, project.Keywords)
				continue
			}
			index[key] = len(merged)
			merged = append(merged, Project{Name: project.Name, Keywords: append([]string(nil), project.Keywords...)})
		}
	}
	return merged
}

// MatchKeywords returns the project with the most keyword hits in text. Ties
// go to the earlier project; no hit returns false.
func MatchKeywords(projects []Project, text string) (Project, bool) {
	best, bestHits := -1, 0
	for i, project := range projects {
		hits := 0
		for _, keyword := range project.Keywords {
			if textutil.ContainsKeyword(text, keyword) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best < 0 {
		return Project{}, false
	}
	return projects[best], true
}

// MatchSimilarity returns the project whose name and keywords are most
// similar to text, provided the cosine similarity reaches minScore.
func MatchSimilarity(projects []Project, text string, minScore float64) (Project, bool) {
	doc := textutil.NewFingerprint(text)
	if doc == nil {
		return Project{}, false
	}
	best, bestScore := -1, 0.0
	for i, project := range projects {
		profile := textutil.NewFingerprint(project.Name + " " + strings.Join(project.Keywords, " "))
		if score := textutil.CosineSimilarity(doc, profile); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < minScore {
		return Project{}, false
	}
	return projects[best], true
}

// FindProject resolves a classifier answer to a known project name.
func FindProject(projects []Project, answer string) (Project, bool) {
	answer = strings.Trim(strings.TrimSpace(firstLine(answer)), `"'.*- `)
	if answer == "" {
		return Project{}, false
	}
	for _, project := range projects {
		if strings.EqualFold(project.Name, answer) {
			return project, true
		}
	}
	return Project{}, false
}

func appendMissing(dst, src []string) []string {
	for _, candidate := range src {
		found := false
		for _, existing := range dst {
			if strings.EqualFold(existing, candidate) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, candidate)
		}
	}
	return dst
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
