// Package e2e runs the full index and query pipeline over a small knowledge base.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/coskb/internal/models"
)

// Article is one knowledge-base page in the test corpus. Query is a phrase that
// appears only in this article (and in its copies).
type Article struct {
	ID    int64
	Title string
	Path  string
	Text  string
	Query string
}

// QueryCase is a query and the page ids that must appear in its results.
type QueryCase struct {
	Query       string
	ExpectedIDs []int64
	Description string
}

// Corpus holds the articles, their query cases and the known duplicate pairs.
type Corpus struct {
	Articles   []Article
	Cases      []QueryCase
	Duplicates [][2]int64
}

var articles = []Article{
	{1, "VPN access", "it/vpn", "Install the GlobalConnect client and sign in with your corporate account to open a VPN tunnel from home.", "VPN tunnel"},
	{2, "Vacation", "hr/vacation", "Submit vacation requests in the HR portal at least two weeks ahead. Your manager approves the leave balance.", "vacation requests"},
	{3, "Printer", "it/printer", "Download the printer driver for the third floor MFP and add the device by its queue name.", "printer driver"},
	{4, "Password", "it/password", "Use the self-service password reset page. The new password must have twelve characters.", "password reset"},
	{5, "Expenses", "finance/expenses", "Attach receipts to expense reports and submit them before the fifth working day of the month.", "expense reports"},
	{6, "Guest Wi-Fi", "it/guest-wifi", "Guests connect to the visitor wireless network with a daily voucher from reception.", "visitor wireless"},
	{7, "Email signature", "it/signature", "Configure the email signature template with your name and phone.", "email signature"},
	{8, "Rooms", "office/rooms", "Book meeting rooms in the calendar and cancel the booking if plans change.", "meeting rooms"},
	{9, "Laptops", "it/laptops", "Request laptop replacement after four years of service through the IT catalogue.", "laptop replacement"},
	{10, "2FA", "it/2fa", "Enable two-factor login with the authenticator app before opening payroll.", "authenticator app"},
	{11, "Sick leave", "hr/sick-leave", "Tell your manager on the first day and upload the medical certificate.", "medical certificate"},
	{12, "Business trips", "hr/trips", "Trips must be approved first. The travel desk books flights and hotels.", "travel desk"},
	{13, "Onboarding", "hr/onboarding", "The onboarding checklist lists accounts and equipment for new employees.", "onboarding checklist"},
	{14, "Parking", "office/parking", "Parking permits are issued by facilities. The garage opens at seven.", "parking permits"},
	{15, "Network folders", "it/folders", "Map the shared drive with the network path from the department folder list.", "shared drive"},
	{16, "Software", "it/software", "Ask the service desk for software installation. Admin rights are not granted to users.", "software installation"},
	{17, "Phones", "office/phones", "The internal phone directory is searchable by surname and extension number.", "phone directory"},
	{18, "Security", "it/security", "Forward phishing emails to the security team immediately.", "phishing emails"},
	{19, "Backups", "it/backups", "Files in the Documents folder are copied nightly by the backup agent.", "backup agent"},
	{20, "Remote desktop", "it/rdp", "Use remote desktop to reach your office computer. The gateway is only reachable over VPN.", "remote desktop"},
	{21, "Mobile plans", "office/mobile", "Corporate mobile plans include unlimited calls. Roaming needs approval.", "roaming"},
	{22, "Payroll", "finance/payroll", "Salaries are paid twice a month according to the payroll calendar.", "payroll calendar"},
	{23, "Insurance", "hr/insurance", "Health insurance covers dental care after the probation period.", "dental care"},
	{24, "Training", "hr/training", "Each employee has an annual training budget for courses and conferences.", "training budget"},
	{25, "Reviews", "hr/reviews", "The performance review happens every spring with a self-assessment.", "performance review"},
	{26, "Kitchen", "office/kitchen", "Label food in the shared fridge. The kitchen is cleaned on Fridays.", "shared fridge"},
	{27, "Badges", "office/badges", "Lost access badges are blocked by security and reissued at reception.", "access badges"},
	{28, "Monitors", "it/monitors", "Connect the second monitor to the docking station with a DisplayPort cable.", "docking station"},
	{29, "Git", "dev/git", "Request repository access from the team lead and register SSH keys in your profile.", "SSH keys"},
	{30, "Credentials", "dev/credentials", "Credentials for test stands are stored in the password vault.", "password vault"},
	{31, "Releases", "dev/releases", "Releases go through staging and the change approval board.", "change approval board"},
	{32, "On-call", "dev/on-call", "Engineers on duty get an alert in the paging tool and respond within fifteen minutes.", "paging tool"},
	{33, "Code review", "dev/review", "Every merge request needs two approvals before it lands.", "merge request"},
	{34, "Cloud costs", "dev/cloud", "Cloud resources are tagged with a cost centre for budgeting.", "cost centre"},
	{35, "Postmortems", "dev/postmortems", "Write a postmortem within five days of a production outage.", "production outage"},
	{36, "Archive", "legal/archive", "Contracts are kept for five years under the retention policy.", "retention policy"},
	{37, "Procurement", "finance/procurement", "Purchases above the limit need three supplier quotes.", "supplier quotes"},
	{38, "Relocation", "hr/relocation", "The relocation package covers moving costs and temporary housing.", "temporary housing"},
	{39, "Working from home", "hr/remote", "Remote work is allowed two days per week with agreement.", "remote work"},
	{40, "Overtime", "hr/overtime", "Overtime is compensated with time off or double pay.", "double pay"},
	{41, "Отпуск по уходу за ребёнком", "hr/parental", "Заявление на отпуск по уходу за ребёнком подаётся в отдел кадров.", "уходу за ребёнком"},
	{42, "Гостевой пропуск", "office/guest-pass", "Гостевой пропуск оформляется на ресепшене за день до визита.", "гостевой пропуск"},
	{43, "Корпоративная почта", "it/mailbox", "Почтовый ящик увеличивают до пятидесяти гигабайт по заявке.", "почтовый ящик"},
	{44, "Командировки", "hr/per-diem", "Суточные в командировке выплачиваются авансом.", "суточные"},
	{45, "Справки", "hr/certificates", "Справку с места работы можно заказать в личном кабинете.", "личном кабинете"},
}

// copies are pages republished under another id with identical content.
var copies = map[int64]int64{
	46: 3,
	47: 22,
}

// BuildCorpus returns the articles, one query case per article and the duplicate
// pairs created by republished copies.
func BuildCorpus() *Corpus {
	c := &Corpus{Articles: append([]Article(nil), articles...)}
	byID := make(map[int64]Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	copyOf := make(map[int64][]int64)
	for copyID, origID := range copies {
		orig := byID[origID]
		orig.ID = copyID
		orig.Path += "-copy"
		c.Articles = append(c.Articles, orig)
		c.Duplicates = append(c.Duplicates, [2]int64{min(origID, copyID), max(origID, copyID)})
		copyOf[origID] = append(copyOf[origID], copyID)
	}
	for _, a := range articles {
		c.Cases = append(c.Cases, QueryCase{
			Query:       a.Query,
			ExpectedIDs: append([]int64{a.ID}, copyOf[a.ID]...),
			Description: fmt.Sprintf("%q finds page %d", a.Query, a.ID),
		})
	}
	return c
}

// SourceDocuments converts the articles into indexer input.
func (c *Corpus) SourceDocuments() []models.SourceDocument {
	out := make([]models.SourceDocument, len(c.Articles))
	for i, a := range c.Articles {
		out[i] = models.SourceDocument{ID: a.ID, Title: a.Title, Path: a.Path, Text: a.Text}
	}
	return out
}

func containsPhrase(a Article, phrase string) bool {
	phrase = strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(a.Title), phrase) || strings.Contains(strings.ToLower(a.Text), phrase)
}
