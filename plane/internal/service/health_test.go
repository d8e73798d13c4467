package service

import "testing"

func allModules() []string {
	return append([]string(nil), RecommendedPHPModules...)
}

func TestEvaluateHealth_AllGood(t *testing.T) {
	r := EvaluateHealth(&HealthInput{
		WPVersion:       "6.5.2",
		HasDefaultTheme: true,
		PHPExtensions:   allModules(),
		PHPVersion:      "8.2.10",
	})
	if r.Status != HealthGood || r.HealthScore != 100 || r.TotalTests != 6 {
		t.Fatalf("全部通过时应为 good/100/6, got %s/%d/%d", r.Status, r.HealthScore, r.TotalTests)
	}
}

func TestEvaluateHealth_ScoreAndStatus(t *testing.T) {
	r := EvaluateHealth(&HealthInput{
		WPVersion:       "6.4.0",
		CoreUpdate:      "6.5.2",
		HasDefaultTheme: true,
		PHPExtensions:   []string{"curl", "json"},
		PluginUpdates:   3,
		PHPVersion:      "7.2.34",
	})

	/* critical: php_version；recommended: core、modules、plugins；good: theme、themes */
	if r.CriticalIssues != 1 || r.RecommendedIssues != 3 || r.GoodItems != 2 {
		t.Fatalf("分类计数错误: %d/%d/%d", r.CriticalIssues, r.RecommendedIssues, r.GoodItems)
	}
	if r.Status != HealthCritical {
		t.Fatalf("存在 critical 时整体应为 critical, got %s", r.Status)
	}
	/* round(2/6*100) = 33 */
	if r.HealthScore != 33 {
		t.Fatalf("health_score 应为 33, got %d", r.HealthScore)
	}
	if r.Recommended[0].Label != "WordPress update available (6.5.2)" {
		t.Fatalf("核心更新提示不符: %s", r.Recommended[0].Label)
	}
	if r.Recommended[2].Label != "3 plugin update(s) available" {
		t.Fatalf("插件更新提示不符: %s", r.Recommended[2].Label)
	}
}

func TestEvaluateHealth_PHPVersionBoundaries(t *testing.T) {
	cases := map[string]string{
		"7.3.33":        HealthCritical,
		"7.4":           HealthRecommended,
		"7.4.0":         HealthRecommended,
		"7.4.33":        HealthRecommended,
		"8.0.0":         HealthGood,
		"8.1.2-1ubuntu": HealthGood,
	}
	for v, want := range cases {
		r := EvaluateHealth(&HealthInput{HasDefaultTheme: true, PHPExtensions: allModules(), PHPVersion: v})
		var got string
		for _, list := range [][]HealthItem{r.Critical, r.Recommended, r.Good} {
			for _, it := range list {
				if it.Test == "php_version" {
					got = it.Status
				}
			}
		}
		if got != want {
			t.Errorf("PHP %s 应为 %s, got %s", v, want, got)
		}
	}
}

func TestEvaluateHealth_RecommendedOnly(t *testing.T) {
	r := EvaluateHealth(&HealthInput{
		WPVersion:     "6.5",
		PHPExtensions: allModules(),
		PHPVersion:    "8.3.0",
	})
	if r.Status != HealthRecommended || r.HealthScore != 83 {
		t.Fatalf("缺少默认主题时应为 recommended/83, got %s/%d", r.Status, r.HealthScore)
	}
	if r.Recommended[0].Badge == nil || r.Recommended[0].Badge.Label != "Security" {
		t.Fatal("默认主题检查的 badge 应为 Security")
	}
}
