package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"briefsmith/internal/brief"
	"briefsmith/internal/revision"
	"briefsmith/internal/services"
	"briefsmith/internal/services/llm"
)

const maxContextChars = 60000

// Completer sends one JSON chat completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// BriefInput is everything the first generation of a brief works from.
type BriefInput struct {
	CompanyName string
	LeaderName  string
	LeaderTitle string
	Sources     brief.IngestResult
	// Issues from a failed quality evaluation; set on regeneration.
	PreviousIssues []string
}

// Draft is a generated brief and the packet derived from it.
type Draft struct {
	Brief  brief.Brief
	Packet brief.Packet
}

// RevisionInput pairs the current brief with the merged corrections.
type RevisionInput struct {
	CompanyName string
	LeaderName  string
	Brief       brief.Brief
	Request     revision.Request
}

// SynthesisInput is the latest brief plus the interviewer's notes.
type SynthesisInput struct {
	CompanyName  string
	LeaderName   string
	Brief        brief.Brief
	BriefVersion int
	Notes        brief.SynthesisNotes
}

// LLMGenerator implements generation over a chat completion model.
type LLMGenerator struct {
	llm Completer
	now func() time.Time
}

// NewLLMGenerator returns a generator backed by client.
func NewLLMGenerator(client Completer) *LLMGenerator {
	return &LLMGenerator{llm: client, now: time.Now}
}

// NewFromConfig builds a generator from the LLM settings.
func NewFromConfig(cfg llm.Config) *LLMGenerator {
	return NewLLMGenerator(llm.NewClient(cfg))
}

// GenerateBrief drafts a brief from ingested sources, then the packet.
func (g *LLMGenerator) GenerateBrief(ctx context.Context, in BriefInput) (Draft, error) {
	var b brief.Brief
	if err := g.completeInto(ctx, "generate brief", BriefSystemPrompt, briefPrompt(in), &b); err != nil {
		return Draft{}, err
	}
	g.finishBrief(&b, in.CompanyName)
	if err := b.Validate(); err != nil {
		return Draft{}, services.Wrap(services.ErrTransient, "generating", "generate brief", "model returned an unusable brief", err)
	}

	var packet brief.Packet
	if err := g.completeInto(ctx, "generate packet", PacketSystemPrompt, packetPrompt(in, b), &packet); err != nil {
		return Draft{}, err
	}
	finishPacket(&packet, b, in)
	return Draft{Brief: b, Packet: packet}, nil
}

// ReviseBrief applies a non-empty revision request to the brief.
func (g *LLMGenerator) ReviseBrief(ctx context.Context, in RevisionInput) (brief.Brief, error) {
	if in.Request.IsEmpty() {
		return brief.Brief{}, fmt.Errorf("%w: revision request has no changes", services.ErrValidation)
	}
	var revised brief.Brief
	if err := g.completeInto(ctx, "revise brief", RevisionSystemPrompt, revisionPrompt(in), &revised); err != nil {
		return brief.Brief{}, err
	}
	g.finishBrief(&revised, in.CompanyName)
	if err := revised.Validate(); err != nil {
		return brief.Brief{}, services.Wrap(services.ErrTransient, "updating_brief", "revise brief", "model returned an unusable brief", err)
	}
	revised.SelectedQuestionIDs = revision.SelectQuestions(revised, in.Request.SelectedQuestions)
	return revised, nil
}

// Synthesize produces the post-call synthesis.
func (g *LLMGenerator) Synthesize(ctx context.Context, in SynthesisInput) (brief.Synthesis, error) {
	var out brief.Synthesis
	if err := g.completeInto(ctx, "synthesize", SynthesisSystemPrompt, synthesisPrompt(in), &out); err != nil {
		return brief.Synthesis{}, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return brief.Synthesis{}, fmt.Errorf("%w: synthesize: model returned no summary", services.ErrTransient)
	}
	out.GeneratedAt = g.now().UTC()
	out.BriefVersion = in.BriefVersion
	out.Notes = in.Notes
	if out.Company.Name == "" {
		out.Company.Name = in.CompanyName
	}
	return out, nil
}

func (g *LLMGenerator) completeInto(ctx context.Context, op, system, user string, target any) error {
	content, err := g.llm.CompleteJSON(ctx, system, user)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := llm.DecodeLLMJSON(content, target); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (g *LLMGenerator) finishBrief(b *brief.Brief, company string) {
	b.GeneratedAt = g.now().UTC()
	if b.Company.Name == "" {
		b.Company.Name = company
	}
	if b.Title == "" {
		b.Title = "Interviewer Brief: " + company
	}
	used := make(map[string]struct{}, len(b.Questions))
	for i := range b.Questions {
		q := &b.Questions[i]
		q.Text = strings.TrimSpace(q.Text)
		q.Phase = normalizePhase(q.Phase)
		if _, dup := used[q.ID]; q.ID == "" || dup {
			q.ID = fmt.Sprintf("q%d", i+1)
			for n := len(b.Questions) + 1; ; n++ {
				if _, taken := used[q.ID]; !taken {
					break
				}
				q.ID = fmt.Sprintf("q%d", n)
			}
		}
		used[q.ID] = struct{}{}
	}
}

func finishPacket(p *brief.Packet, b brief.Brief, in BriefInput) {
	if p.CompanyName == "" {
		p.CompanyName = in.CompanyName
	}
	if p.PreparedFor == "" {
		p.PreparedFor = in.LeaderName
	}
	if len(p.QuestionMenu) == 0 {
		p.QuestionMenu = brief.PacketMenu(b)
	}
	if len(p.QuestionMenu) > brief.MaxPacketQuestions {
		p.QuestionMenu = p.QuestionMenu[:brief.MaxPacketQuestions]
	}
	if len(p.SourcesUsed) == 0 {
		p.SourcesUsed = in.Sources.SourceKinds()
	}
}

func normalizePhase(p brief.Phase) brief.Phase {
	value := strings.ToLower(strings.TrimSpace(string(p)))
	value = strings.NewReplacer("-", "_", " ", "_").Replace(value)
	switch brief.Phase(value) {
	case brief.PhaseOpening, brief.PhaseDeepDive, brief.PhaseStrategic, brief.PhaseClosing:
		return brief.Phase(value)
	case "deepdive":
		return brief.PhaseDeepDive
	}
	return p
}

func briefPrompt(in BriefInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prepare an interviewer brief for a conversation with %s", in.LeaderName)
	if in.LeaderTitle != "" {
		fmt.Fprintf(&sb, " (%s)", in.LeaderTitle)
	}
	fmt.Fprintf(&sb, " of %s.\n\n", in.CompanyName)
	sb.WriteString("SOURCE MATERIAL:\n")
	sb.WriteString(joinChunks(in.Sources.Chunks))
	sb.WriteString("\n\n")
	if len(in.PreviousIssues) > 0 {
		sb.WriteString("A previous draft was rejected for these problems. Fix all of them:\n")
		for _, issue := range in.PreviousIssues {
			sb.WriteString("- ")
			sb.WriteString(issue)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("Return a JSON object with this structure:\n")
	sb.WriteString(briefSchema)
	sb.WriteString("\n\nWrite 5-7 key points, 3-5 knowledge gaps, and exactly 8 questions. The first 6 questions form the interviewee's menu.")
	return sb.String()
}

func packetPrompt(in BriefInput, b brief.Brief) string {
	menu, _ := json.MarshalIndent(brief.PacketMenu(b), "", "  ")
	summary, _ := json.MarshalIndent(struct {
		Summary   string           `json:"executiveSummary"`
		KeyPoints []brief.KeyPoint `json:"whatWeThinkWeKnow"`
	}{b.ExecutiveSummary, b.KeyPoints}, "", "  ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the pre-interview packet for %s of %s.\n\n", in.LeaderName, in.CompanyName)
	sb.WriteString("WHAT WE THINK WE KNOW:\n")
	sb.Write(summary)
	sb.WriteString("\n\nQUESTION MENU:\n")
	sb.Write(menu)
	fmt.Fprintf(&sb, "\n\nSOURCE TYPES: %s\n\n", strings.Join(in.Sources.SourceKinds(), ", "))
	sb.WriteString("Return a JSON object with this structure:\n")
	sb.WriteString(packetSchema)
	return sb.String()
}

func revisionPrompt(in RevisionInput) string {
	current, _ := json.MarshalIndent(in.Brief, "", "  ")
	changes, _ := json.MarshalIndent(in.Request.Changes, "", "  ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Revise the interviewer brief for the conversation with %s of %s.\n\n", in.LeaderName, in.CompanyName)
	sb.WriteString("CURRENT BRIEF:\n")
	sb.Write(current)
	sb.WriteString("\n\nINTERVIEWEE CORRECTIONS (\"location\" names the field when the original text was found):\n")
	sb.Write(changes)
	if len(in.Request.SelectedQuestions) > 0 {
		fmt.Fprintf(&sb, "\n\nINTERVIEWEE-SELECTED QUESTIONS (prioritize these): %s", strings.Join(in.Request.SelectedQuestions, ", "))
	}
	return sb.String()
}

func synthesisPrompt(in SynthesisInput) string {
	notes, _ := json.MarshalIndent(in.Notes, "", "  ")
	current, _ := json.MarshalIndent(struct {
		Company   brief.CompanyHeader `json:"companyHeader"`
		Summary   string              `json:"executiveSummary"`
		KeyPoints []brief.KeyPoint    `json:"whatWeThinkWeKnow"`
		Gaps      []string            `json:"knowledgeGaps"`
	}{in.Brief.Company, in.Brief.ExecutiveSummary, in.Brief.KeyPoints, in.Brief.KnowledgeGaps}, "", "  ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Synthesize the conversation with %s of %s.\n\n", in.LeaderName, in.CompanyName)
	sb.WriteString("INTERVIEW NOTES:\n")
	sb.Write(notes)
	sb.WriteString("\n\nBRIEF (what we believed going in):\n")
	sb.Write(current)
	sb.WriteString("\n\nReturn a JSON object with this structure:\n")
	sb.WriteString(synthesisSchema)
	return sb.String()
}

func joinChunks(chunks []string) string {
	if len(chunks) == 0 {
		return "No source material was available. Rely on general knowledge and mark every assertion Inferred."
	}
	var sb strings.Builder
	for i, chunk := range chunks {
		if sb.Len()+len(chunk) > maxContextChars {
			fmt.Fprintf(&sb, "\n[%d further excerpts omitted]", len(chunks)-i)
			break
		}
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(chunk)
	}
	return sb.String()
}
