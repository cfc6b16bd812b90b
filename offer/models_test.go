package offer

import "testing"

func TestStageDerivation(t *testing.T) {
	cases := []struct {
		name  string
		offer Offer
		want  int
	}{
		{
			name:  "awaiting investor advisor",
			offer: Offer{Status: StatusPending, InvestorAdvisorApproval: ApprovalPending, StartupAdvisorApproval: ApprovalPending},
			want:  1,
		},
		{
			name:  "no investor advisor skips to startup advisor",
			offer: Offer{Status: StatusPending, InvestorAdvisorApproval: ApprovalNotRequired, StartupAdvisorApproval: ApprovalPending},
			want:  2,
		},
		{
			name:  "neither side has an advisor",
			offer: Offer{Status: StatusPending, InvestorAdvisorApproval: ApprovalNotRequired, StartupAdvisorApproval: ApprovalNotRequired},
			want:  3,
		},
		{
			name:  "both advisors approved",
			offer: Offer{Status: StatusStartupAdvisorApproved, InvestorAdvisorApproval: ApprovalApproved, StartupAdvisorApproval: ApprovalApproved},
			want:  3,
		},
		{
			name:  "accepted",
			offer: Offer{Status: StatusAccepted, InvestorAdvisorApproval: ApprovalApproved, StartupAdvisorApproval: ApprovalNotRequired},
			want:  4,
		},
		{
			name:  "investor advisor rejection freezes stage 1",
			offer: Offer{Status: StatusInvestorAdvisorRejected, InvestorAdvisorApproval: ApprovalRejected, StartupAdvisorApproval: ApprovalPending},
			want:  1,
		},
		{
			name:  "startup advisor rejection freezes stage 2",
			offer: Offer{Status: StatusStartupAdvisorRejected, InvestorAdvisorApproval: ApprovalApproved, StartupAdvisorApproval: ApprovalRejected},
			want:  2,
		},
		{
			name:  "startup rejection freezes stage 3",
			offer: Offer{Status: StatusRejected, InvestorAdvisorApproval: ApprovalNotRequired, StartupAdvisorApproval: ApprovalApproved},
			want:  3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.offer.Stage(); got != tc.want {
				t.Fatalf("Stage() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusAccepted, StatusRejected, StatusInvestorAdvisorRejected, StatusStartupAdvisorRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	live := []Status{StatusPending, StatusInvestorAdvisorApproved, StatusStartupAdvisorApproved}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %s to be live", s)
		}
	}
}
