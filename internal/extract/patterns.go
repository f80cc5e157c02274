package extract

import "regexp"

// pattern is one precompiled extraction rule. Template is expanded with
// the regexp capture groups ($1, $2) to produce the memory content.
type pattern struct {
	re         *regexp.Regexp
	nodeType   string
	importance float64
	category   string
	template   string
}

// patterns is the fixed bilingual (Korean/English) rule set for the hot
// path. Compiled once at package init; extraction itself allocates only
// for matches.
var patterns = []pattern{
	// --- Korean: preferences ---
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)(?:을|를)?\s*(?:정말 |진짜 )?좋아해요?`), "preference", 0.6, "preference", "좋아하는 것: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)(?:을|를)?\s*(?:정말 |진짜 )?싫어해요?`), "preference", 0.6, "preference", "싫어하는 것: $1"},
	{regexp.MustCompile(`요즘 ([가-힣A-Za-z0-9 ]{1,30}?)에 빠졌어요?`), "preference", 0.55, "preference", "요즘 빠져 있는 것: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?) 팬이에요`), "preference", 0.55, "preference", "팬인 대상: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?) 먹는 걸 좋아해요?`), "preference", 0.6, "food", "좋아하는 음식: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)(?:을|를)?\s*자주 (?:봐요|들어요|해요)`), "atomic_fact", 0.45, "habit", "자주 하는 것: $1"},

	// --- Korean: identity ---
	{regexp.MustCompile(`제 이름은 ([가-힣A-Za-z0-9]{1,20})(?:이에요|예요|입니다)`), "atomic_fact", 0.9, "identity", "이름: $1"},
	{regexp.MustCompile(`저는 (\d{1,3})살(?:이에요|입니다)?`), "atomic_fact", 0.8, "identity", "나이: $1살"},
	{regexp.MustCompile(`저는 ([가-힣A-Za-z0-9 ]{1,20}?)(?:이에요|예요|입니다)`), "atomic_fact", 0.5, "identity", "자기소개: $1"},

	// --- Korean: location ---
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)에 살아요`), "atomic_fact", 0.8, "location", "사는 곳: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)에 살고 있어요`), "atomic_fact", 0.8, "location", "사는 곳: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?) 출신이에요`), "atomic_fact", 0.7, "location", "출신: $1"},

	// --- Korean: occupation / study ---
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)에서 일해요`), "atomic_fact", 0.75, "occupation", "직장: $1"},
	{regexp.MustCompile(`직업은 ([가-힣A-Za-z0-9 ]{1,20}?)(?:이에요|예요|입니다)`), "atomic_fact", 0.8, "occupation", "직업: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)(?:을|를)?\s*공부하고 있어요`), "atomic_fact", 0.6, "study", "공부 중: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)(?:을|를)?\s*전공했어요`), "atomic_fact", 0.65, "study", "전공: $1"},

	// --- Korean: relationships / possessions ---
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)(?:와|과) 결혼했어요`), "atomic_fact", 0.8, "relationship", "배우자: $1"},
	{regexp.MustCompile(`(남자친구|여자친구)가 있어요`), "atomic_fact", 0.7, "relationship", "연애 중: $1 있음"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,20}?)(?:을|를)?\s*키우고 있어요`), "atomic_fact", 0.6, "possession", "키우는 것: $1"},
	{regexp.MustCompile(`동생이 (\d{1,2})명 있어요`), "atomic_fact", 0.55, "relationship", "동생: $1명"},

	// --- Korean: goals / experience / habits / opinions ---
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)(?:하는 게|이) 꿈이에요`), "preference", 0.7, "goal", "꿈: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)(?:을|를)?\s*배우고 싶어요`), "preference", 0.6, "goal", "배우고 싶은 것: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)에 가 본 적(?:이)? 있어요`), "atomic_fact", 0.5, "experience", "가 본 곳: $1"},
	{regexp.MustCompile(`매일 ([가-힣A-Za-z0-9 ]{1,30}?)(?:해요|을 해요|를 해요)`), "atomic_fact", 0.5, "habit", "매일 하는 것: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?)(?:이|가) 최고(?:예요|에요|입니다)`), "preference", 0.5, "opinion", "최고라고 생각하는 것: $1"},
	{regexp.MustCompile(`([가-힣A-Za-z0-9 ]{1,30}?) 알레르기가 있어요`), "atomic_fact", 0.85, "health", "알레르기: $1"},

	// --- English: preferences ---
	{regexp.MustCompile(`(?i)\bi (?:really |absolutely )?(?:like|love|enjoy) ([\w' -]{1,40})`), "preference", 0.6, "preference", "Likes $1"},
	{regexp.MustCompile(`(?i)\bi (?:really |absolutely )?(?:hate|dislike|can't stand) ([\w' -]{1,40})`), "preference", 0.6, "preference", "Dislikes $1"},
	{regexp.MustCompile(`(?i)\bmy favorite (\w+) is ([\w' -]{1,40})`), "preference", 0.65, "preference", "Favorite $1: $2"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) (?:a )?(?:big|huge) fan of ([\w' -]{1,40})`), "preference", 0.55, "preference", "Fan of $1"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) (?:really )?into ([\w' -]{1,40})`), "preference", 0.55, "preference", "Into $1"},

	// --- English: identity ---
	{regexp.MustCompile(`(?i)\bmy name is (\w[\w -]{0,20})`), "atomic_fact", 0.9, "identity", "Name: $1"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) (\d{1,3}) years old\b`), "atomic_fact", 0.8, "identity", "Age: $1"},
	{regexp.MustCompile(`(?i)\bcall me (\w[\w -]{0,20})`), "atomic_fact", 0.7, "identity", "Preferred name: $1"},

	// --- English: location ---
	{regexp.MustCompile(`(?i)\bi live in ([\w' -]{1,30})`), "atomic_fact", 0.8, "location", "Lives in $1"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) from ([\w' -]{1,30})`), "atomic_fact", 0.7, "location", "From $1"},
	{regexp.MustCompile(`(?i)\bi moved to ([\w' -]{1,30})`), "atomic_fact", 0.7, "location", "Moved to $1"},

	// --- English: occupation / study ---
	{regexp.MustCompile(`(?i)\bi work as (?:an? )?([\w' -]{1,30})`), "atomic_fact", 0.8, "occupation", "Works as $1"},
	{regexp.MustCompile(`(?i)\bi work at ([\w' -]{1,30})`), "atomic_fact", 0.75, "occupation", "Works at $1"},
	{regexp.MustCompile(`(?i)\bmy job is ([\w' -]{1,30})`), "atomic_fact", 0.8, "occupation", "Job: $1"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) studying ([\w' -]{1,30})`), "atomic_fact", 0.6, "study", "Studying $1"},
	{regexp.MustCompile(`(?i)\bi majored in ([\w' -]{1,30})`), "atomic_fact", 0.65, "study", "Majored in $1"},

	// --- English: relationships / possessions ---
	{regexp.MustCompile(`(?i)\bi(?:'m| am) married to ([\w' -]{1,30})`), "atomic_fact", 0.8, "relationship", "Married to $1"},
	{regexp.MustCompile(`(?i)\bmy (wife|husband|girlfriend|boyfriend|partner)\b`), "atomic_fact", 0.6, "relationship", "Has a $1"},
	{regexp.MustCompile(`(?i)\bi have (?:a|an|two|three|\d+) (cats?|dogs?|pets?|kids?|children)\b`), "atomic_fact", 0.6, "possession", "Has $1"},

	// --- English: goals / experience / habits / opinions / health ---
	{regexp.MustCompile(`(?i)\bi want to (?:be|become) ([\w' -]{1,40})`), "preference", 0.7, "goal", "Wants to become $1"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) planning to ([\w' -]{1,40})`), "preference", 0.6, "goal", "Planning to $1"},
	{regexp.MustCompile(`(?i)\bi(?:'ve| have) been to ([\w' -]{1,30})`), "atomic_fact", 0.5, "experience", "Has been to $1"},
	{regexp.MustCompile(`(?i)\bi usually ([\w' -]{1,40})`), "atomic_fact", 0.45, "habit", "Usually $1"},
	{regexp.MustCompile(`(?i)\bevery (?:day|morning|night) i ([\w' -]{1,40})`), "atomic_fact", 0.5, "habit", "Daily: $1"},
	{regexp.MustCompile(`(?i)\bi think ([\w' -]{1,50})`), "atomic_fact", 0.35, "opinion", "Thinks $1"},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to ([\w' -]{1,30})`), "atomic_fact", 0.85, "health", "Allergic to $1"},
	{regexp.MustCompile(`(?i)\bi can speak ([\w' -]{1,30})`), "atomic_fact", 0.6, "skill", "Speaks $1"},
	{regexp.MustCompile(`(?i)\bi play (?:the )?(guitar|piano|violin|drums|bass|\w+ball|soccer|tennis|golf)\b`), "atomic_fact", 0.55, "hobby", "Plays $1"},
}
