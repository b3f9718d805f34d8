package gov24

// 政府门户各步骤的 DOM 选择器
//
// 站点改版会让这些选择器失效，失效时统一以 dom_structure
// 类别上报并携带具体选择器，便于区分"站点变了"和"网络抖动"。
const (
	// 简便认证表单
	selAuthName        = `input[name="userNm"]`
	selAuthBirth       = `input[name="brthdy"]`
	selAuthPhone       = `input[name="moblphonNo"]`
	selAuthCarrier     = `select[name="mobileCo"]`
	selAuthAgree       = `input#agreeAll`
	selAuthRequestBtn  = `button.btn-auth-request`
	selAuthCompleteBtn = `button.btn-auth-confirm`

	// 认证完成后才出现的登录态标记
	selLoggedInMarker = `a.my-gov-menu`

	// 民원 신청 表单
	selApplyFileInput = `input[type="file"]#fileUpload`
	selApplyNextBtn   = `button#btnNext`
	selFinalSubmitBtn = `button#btnSubmit`
	selSubmitDoneMsg  = `div.apply-complete`
)

// 门户路径
const (
	pathSimpleAuth = "/nlogin/simpleAuth"
	pathMyPage     = "/mypage"
	pathApply      = "/minwon/apply"
)
