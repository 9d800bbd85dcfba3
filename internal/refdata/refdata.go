// Package refdata carries the static reference lists the aggregation engine
// keys its verdicts on: Iran's provinces, the major ISPs, and the ASN lookup
// table that ties provider-reported network identifiers back to those ISPs.
// Everything here is immutable at runtime.
package refdata

import "github.com/SepehrMohammady/IranBlackout/internal/status"

// ASNTableVersion identifies the revision of the ASN mapping below so cached
// aggregation results can be invalidated when the table changes.
const ASNTableVersion = "2025-06"

type ISPType string

const (
	Mobile ISPType = "mobile"
	Fixed  ISPType = "fixed"
	Both   ISPType = "both"
)

// Region is one of Iran's 31 provinces.
type Region struct {
	ID         string `json:"id"`
	NameEn     string `json:"name_en"`
	NameFa     string `json:"name_fa"`
	Population int    `json:"population,omitempty"`
}

// ISP is a tracked network operator. ASNs lists the autonomous systems the
// operator announces; Regions lists provinces with a significant footprint,
// empty meaning nationwide coverage.
type ISP struct {
	ID      string   `json:"id"`
	NameEn  string   `json:"name_en"`
	NameFa  string   `json:"name_fa"`
	Type    ISPType  `json:"type"`
	ASNs    []int    `json:"asns,omitempty"`
	Regions []string `json:"regions,omitempty"`
}

// RegionStatus pairs a region with its current verdict for API responses.
type RegionStatus struct {
	Region
	Status      status.Status `json:"status"`
	LastUpdated int64         `json:"last_updated"`
}

// ISPStatus pairs an ISP with its current verdict.
type ISPStatus struct {
	ISP
	Status      status.Status `json:"status"`
	LastUpdated int64         `json:"last_updated"`
}

var regions = []Region{
	{ID: "IR.TH", NameEn: "Tehran", NameFa: "تهران", Population: 13000000},
	{ID: "IR.ES", NameEn: "Isfahan", NameFa: "اصفهان", Population: 5200000},
	{ID: "IR.FA", NameEn: "Fars", NameFa: "فارس", Population: 4900000},
	{ID: "IR.KV", NameEn: "Razavi Khorasan", NameFa: "خراسان رضوی", Population: 6400000},
	{ID: "IR.EA", NameEn: "East Azerbaijan", NameFa: "آذربایجان شرقی", Population: 3900000},
	{ID: "IR.KZ", NameEn: "Khuzestan", NameFa: "خوزستان", Population: 4700000},
	{ID: "IR.AL", NameEn: "Alborz", NameFa: "البرز", Population: 2700000},
	{ID: "IR.GI", NameEn: "Gilan", NameFa: "گیلان", Population: 2500000},
	{ID: "IR.KE", NameEn: "Kerman", NameFa: "کرمان", Population: 3200000},
	{ID: "IR.WA", NameEn: "West Azerbaijan", NameFa: "آذربایجان غربی", Population: 3300000},
	{ID: "IR.MN", NameEn: "Mazandaran", NameFa: "مازندران", Population: 3300000},
	{ID: "IR.BK", NameEn: "Kermanshah", NameFa: "کرمانشاه", Population: 2000000},
	{ID: "IR.MK", NameEn: "Markazi", NameFa: "مرکزی", Population: 1400000},
	{ID: "IR.GO", NameEn: "Golestan", NameFa: "گلستان", Population: 1900000},
	{ID: "IR.LO", NameEn: "Lorestan", NameFa: "لرستان", Population: 1800000},
	{ID: "IR.HD", NameEn: "Hamadan", NameFa: "همدان", Population: 1800000},
	{ID: "IR.SM", NameEn: "Semnan", NameFa: "سمنان", Population: 700000},
	{ID: "IR.QM", NameEn: "Qom", NameFa: "قم", Population: 1300000},
	{ID: "IR.QZ", NameEn: "Qazvin", NameFa: "قزوین", Population: 1300000},
	{ID: "IR.KD", NameEn: "Kurdistan", NameFa: "کردستان", Population: 1600000},
	{ID: "IR.ZA", NameEn: "Zanjan", NameFa: "زنجان", Population: 1100000},
	{ID: "IR.AR", NameEn: "Ardabil", NameFa: "اردبیل", Population: 1300000},
	{ID: "IR.SB", NameEn: "Sistan and Baluchestan", NameFa: "سیستان و بلوچستان", Population: 2800000},
	{ID: "IR.YA", NameEn: "Yazd", NameFa: "یزد", Population: 1100000},
	{ID: "IR.HG", NameEn: "Hormozgan", NameFa: "هرمزگان", Population: 1800000},
	{ID: "IR.KS", NameEn: "North Khorasan", NameFa: "خراسان شمالی", Population: 900000},
	{ID: "IR.KJ", NameEn: "South Khorasan", NameFa: "خراسان جنوبی", Population: 800000},
	{ID: "IR.KB", NameEn: "Kohgiluyeh", NameFa: "کهگیلویه و بویراحمد", Population: 700000},
	{ID: "IR.CM", NameEn: "Chaharmahal", NameFa: "چهارمحال و بختیاری", Population: 1000000},
	{ID: "IR.BS", NameEn: "Bushehr", NameFa: "بوشهر", Population: 1200000},
	{ID: "IR.IL", NameEn: "Ilam", NameFa: "ایلام", Population: 600000},
}

var isps = []ISP{
	{ID: "mci", NameEn: "MCI (Hamrah-e Aval)", NameFa: "همراه اول", Type: Mobile, ASNs: []int{197207}},
	{ID: "irancell", NameEn: "Irancell (MTN)", NameFa: "ایرانسل", Type: Mobile, ASNs: []int{44244}},
	{ID: "rightel", NameEn: "Rightel", NameFa: "رایتل", Type: Mobile, ASNs: []int{57218}},
	{ID: "tci", NameEn: "TCI (Mokhaberat)", NameFa: "مخابرات", Type: Fixed, ASNs: []int{58224, 12880}},
	{ID: "shatel", NameEn: "Shatel", NameFa: "شاتل", Type: Fixed, ASNs: []int{31549},
		Regions: []string{"IR.TH", "IR.ES", "IR.FA", "IR.KV", "IR.AL"}},
	{ID: "asiatech", NameEn: "Asiatech", NameFa: "آسیاتک", Type: Fixed, ASNs: []int{43754},
		Regions: []string{"IR.TH", "IR.ES", "IR.QM", "IR.MK"}},
	{ID: "pars_online", NameEn: "Pars Online", NameFa: "پارس آنلاین", Type: Fixed, ASNs: []int{16322},
		Regions: []string{"IR.TH", "IR.AL", "IR.MN", "IR.GI"}},
	{ID: "hiweb", NameEn: "HiWEB", NameFa: "های‌وب", Type: Fixed, ASNs: []int{56402},
		Regions: []string{"IR.TH", "IR.KZ", "IR.FA"}},
}

var ispByASN = buildASNIndex()

func buildASNIndex() map[int]string {
	idx := make(map[int]string)
	for _, isp := range isps {
		for _, asn := range isp.ASNs {
			idx[asn] = isp.ID
		}
	}
	return idx
}

// Regions returns a copy of the province reference list.
func Regions() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// ISPs returns a copy of the tracked operator list.
func ISPs() []ISP {
	out := make([]ISP, len(isps))
	copy(out, isps)
	return out
}

// ISPForASN resolves a provider-reported ASN to a tracked ISP id. Unmapped
// ASNs return false and are ignored by the aggregation engine.
func ISPForASN(asn int) (string, bool) {
	id, ok := ispByASN[asn]
	return id, ok
}

// ISPsForRegion lists the ids of operators with a footprint in the region.
// Nationwide operators (empty Regions list) cover every province.
func ISPsForRegion(regionID string) []string {
	var out []string
	for _, isp := range isps {
		if len(isp.Regions) == 0 {
			out = append(out, isp.ID)
			continue
		}
		for _, r := range isp.Regions {
			if r == regionID {
				out = append(out, isp.ID)
				break
			}
		}
	}
	return out
}
